package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
	"vendor-billing/internal/infra/metrics"
	red "vendor-billing/internal/infra/redis"
)

var _ repository.PackageRepository = (*packageRepoCacheDecorator)(nil)

const activePackagesKey = "packages:active"

type packageRepoCacheDecorator struct {
	inner repository.PackageRepository
	cache red.RedisClient
	ttl   time.Duration
	log   zerolog.Logger
}

func NewPackageRepoCacheDecorator(inner repository.PackageRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PackageRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &packageRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger.With().Str("component", "PackageCache").Logger(),
	}
}

func packageKey(id string) string { return fmt.Sprintf("package:%s", id) }

// Reads inside a transaction bypass the cache.
func (d *packageRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := packageKey(id)
	if p, ok := d.get(ctx, key, metrics.CachePackageByID); ok {
		return p, nil
	}

	p, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.set(ctx, key, p)
	return p, nil
}

// FindActiveByID shares the per-package entry and filters on IsActive.
func (d *packageRepoCacheDecorator) FindActiveByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	p, err := d.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// For write operations, we must invalidate the cache.
func (d *packageRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, packageKey(p.ID), activePackagesKey); err != nil {
		d.log.Warn().Err(err).Str("package_id", p.ID).Msg("cache invalidation failed")
	}
	return nil
}

func (d *packageRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Package, error) {
	val, err := d.cache.Get(ctx, activePackagesKey)
	if err == nil {
		var pkgs []*model.Package
		if json.Unmarshal([]byte(val), &pkgs) == nil {
			metrics.ObservePackageCache(metrics.CacheActivePackages, true)
			return pkgs, nil
		}
	} else if !errors.Is(err, red.ErrCacheMiss) {
		d.log.Warn().Err(err).Msg("cache read failed")
	}

	metrics.ObservePackageCache(metrics.CacheActivePackages, false)
	pkgs, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(pkgs) > 0 {
		bytes, _ := json.Marshal(pkgs)
		if err := d.cache.Set(ctx, activePackagesKey, bytes, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("cache write failed")
		}
	}
	return pkgs, nil
}

func (d *packageRepoCacheDecorator) get(ctx context.Context, key, name string) (*model.Package, bool) {
	val, err := d.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, red.ErrCacheMiss) {
			d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.ObservePackageCache(name, false)
		return nil, false
	}
	var p model.Package
	if json.Unmarshal([]byte(val), &p) != nil {
		metrics.ObservePackageCache(name, false)
		return nil, false
	}
	metrics.ObservePackageCache(name, true)
	return &p, true
}

func (d *packageRepoCacheDecorator) set(ctx context.Context, key string, p *model.Package) {
	bytes, _ := json.Marshal(p)
	if err := d.cache.Set(ctx, key, bytes, d.ttl); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
