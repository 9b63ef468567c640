package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"vendor-billing/internal/config"
	"vendor-billing/internal/infra/db/migrations"
	"vendor-billing/internal/infra/logging"
)

const usage = "usage: migrate [-config path] [-env path] up|down|version|force <version>"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	db, err := migrations.Open(cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	switch args[0] {
	case "up":
		err = migrations.Up(db, logger)
	case "down":
		err = migrations.Down(db)
	case "force":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		v, perr := strconv.Atoi(args[1])
		if perr != nil {
			logger.Fatal().Err(perr).Str("version", args[1]).Msg("invalid version")
		}
		err = migrations.Force(db, v)
	case "version":
		v, dirty, verr := migrations.Version(db)
		if verr != nil {
			err = verr
			break
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", args[0]).Msg("migrate failed")
	}
	logger.Info().Str("command", args[0]).Msg("migrate done")
}
