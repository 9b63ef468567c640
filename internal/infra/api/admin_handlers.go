package api

import (
	"context"
	"net/http"

	"vendor-billing/internal/infra/sched"
	"vendor-billing/internal/usecase"
)

// handleCheckExpiring triggers sweeps by hand. By default the named job
// (reminders unless ?job= says otherwise) is queued on the worker pool;
// ?sync=true runs expiry, reminders and renewals inline and returns their
// reports.
func (s *Server) handleCheckExpiring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("sync") == "true" {
		reports := make([]usecase.SweepReport, 0, 3)
		for _, job := range []string{sched.JobExpiry, sched.JobReminders, sched.JobRenewals} {
			rep, err := s.deps.Sweeps.Run(r.Context(), job)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			reports = append(reports, rep)
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
		return
	}

	job := q.Get("job")
	if job == "" {
		job = sched.JobReminders
	}
	switch job {
	case sched.JobExpiry, sched.JobReminders, sched.JobRenewals, sched.JobReconcile:
	default:
		s.writeError(w, r, sched.ErrUnknownJob)
		return
	}
	err := s.deps.Pool.Submit("sweep:"+job, func(ctx context.Context) error {
		_, err := s.deps.Sweeps.Run(ctx, job)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": job, "status": "queued"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
