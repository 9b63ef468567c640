package sched

import (
	"context"

	"vendor-billing/internal/config"
	"vendor-billing/internal/usecase"
)

const (
	JobExpiry    = usecase.JobExpiry
	JobReminders = usecase.JobReminders
	JobRenewals  = usecase.JobRenewals
	JobReconcile = usecase.JobReconcile
)

// SweepFunc is one pass of a lifecycle sweep.
type SweepFunc func(ctx context.Context) (usecase.SweepReport, error)

type Job struct {
	Name string
	Spec string
	Run  SweepFunc
}

// DefaultJobs binds the lifecycle and payment sweeps to their cron specs.
func DefaultJobs(cfg *config.SchedulerConfig, lifecycle usecase.LifecycleUseCase, payments usecase.PaymentUseCase) []Job {
	return []Job{
		{Name: JobExpiry, Spec: cfg.ExpiryCron, Run: lifecycle.SweepExpiredSubscriptions},
		{Name: JobReminders, Spec: cfg.RemindersCron, Run: lifecycle.SweepExpiringNotifications},
		{Name: JobRenewals, Spec: cfg.RenewalsCron, Run: lifecycle.SweepAutoRenewals},
		{Name: JobReconcile, Spec: cfg.ReconcileCron, Run: payments.ReconcilePending},
	}
}
