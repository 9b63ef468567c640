package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"vendor-billing/internal/domain/ports/adapter"
)

var (
	_ adapter.Notifier     = (*NoopNotifier)(nil)
	_ adapter.AdminAlerter = (*NoopAlerter)(nil)
)

// NoopNotifier logs notices instead of sending them. Used when mail is
// disabled.
type NoopNotifier struct {
	log zerolog.Logger

	mu   sync.Mutex
	sent int
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger.With().Str("component", "NoopNotifier").Logger()}
}

func (n *NoopNotifier) SendRenewalReminder(ctx context.Context, notice adapter.LifecycleNotice) error {
	n.record("renewal_reminder", notice)
	return nil
}

func (n *NoopNotifier) SendExpirationNotice(ctx context.Context, notice adapter.LifecycleNotice) error {
	n.record("expiration_notice", notice)
	return nil
}

func (n *NoopNotifier) record(kind string, notice adapter.LifecycleNotice) {
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	n.log.Info().Str("kind", kind).Str("to", notice.Email).Str("package", notice.PackageName).
		Time("end_date", notice.EndDate).Msg("notice suppressed")
}

// Sent reports how many notices were recorded.
func (n *NoopNotifier) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

type NoopAlerter struct {
	log zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	return &NoopAlerter{log: logger.With().Str("component", "NoopAlerter").Logger()}
}

func (a *NoopAlerter) Alert(ctx context.Context, text string) error {
	a.log.Warn().Str("alert", text).Msg("admin alert")
	return nil
}
