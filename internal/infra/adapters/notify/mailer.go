package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/infra/i18n"
)

var _ adapter.Notifier = (*Mailer)(nil)

var ErrNoRecipient = errors.New("notice has no recipient email")

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders lifecycle notices from the locale catalog and sends them
// over SMTP.
type Mailer struct {
	addr    string
	auth    smtp.Auth
	from    string
	catalog *i18n.Catalog
	send    sendFunc
	log     zerolog.Logger
}

func NewMailer(cfg *config.MailConfig, catalog *i18n.Catalog, logger *zerolog.Logger) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("mail: host and from are required")
	}
	if catalog == nil {
		return nil, errors.New("mail: catalog is nil")
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:    auth,
		from:    cfg.From,
		catalog: catalog,
		send:    smtp.SendMail,
		log:     logger.With().Str("component", "Mailer").Logger(),
	}, nil
}

func (m *Mailer) SendRenewalReminder(ctx context.Context, n adapter.LifecycleNotice) error {
	return m.deliver(ctx, n, "reminder_subject", "reminder_body")
}

func (m *Mailer) SendExpirationNotice(ctx context.Context, n adapter.LifecycleNotice) error {
	return m.deliver(ctx, n, "expiry_subject", "expiry_body")
}

func (m *Mailer) deliver(ctx context.Context, n adapter.LifecycleNotice, subjectKey, bodyKey string) error {
	if strings.TrimSpace(n.Email) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := m.render(n, subjectKey, bodyKey)
	msg := m.compose(n.Email, subject, body, time.Now())
	if err := m.send(m.addr, m.auth, m.from, []string{n.Email}, msg); err != nil {
		m.log.Error().Err(err).Str("to", n.Email).Str("kind", subjectKey).Msg("smtp send failed")
		return fmt.Errorf("send mail: %w", err)
	}
	m.log.Debug().Str("to", n.Email).Str("kind", subjectKey).Msg("mail sent")
	return nil
}

func (m *Mailer) render(n adapter.LifecycleNotice, subjectKey, bodyKey string) (string, string) {
	date := n.EndDate.Format(m.catalog.T(n.Locale, "date_format"))
	name := n.DisplayName
	if name == "" {
		name = n.Email
	}
	subject := m.catalog.T(n.Locale, subjectKey, n.PackageName, date)
	body := m.catalog.T(n.Locale, bodyKey, name, n.PackageName, date, n.RenewalLink)
	return subject, body
}

func (m *Mailer) compose(to, subject, body string, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), m.domain())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

func (m *Mailer) domain() string {
	if i := strings.LastIndex(m.from, "@"); i >= 0 {
		return strings.Trim(m.from[i+1:], "> ")
	}
	return "localhost"
}
