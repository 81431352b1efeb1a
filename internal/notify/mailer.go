package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"storescraper/internal/config"
	"storescraper/internal/core/job"
	"storescraper/internal/core/runlog"
	"storescraper/internal/logger"
)

// Mailer sends plain-text run reports over SMTP. Recipients are handled
// independently: one bad address is logged and the rest still get their mail.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	useTLS   bool
	log      *logger.Logger
}

func NewMailer(cfg config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		fromName: cfg.SMTPFromName,
		useTLS:   cfg.SMTPUseTLS,
		log:      logger.New("Mailer"),
	}
}

// Configured reports whether enough SMTP settings are present to send at all.
func (m *Mailer) Configured() bool {
	return m.host != "" && m.from != ""
}

func (m *Mailer) NotifySuccess(ctx context.Context, def *job.Definition, entry *runlog.ExecutionLog) error {
	subject := fmt.Sprintf("[Store Scraper] %s completed: %d products", def.Name, entry.TotalProductsScraped)
	return m.sendReport(ctx, def, entry, subject)
}

func (m *Mailer) NotifyFailure(ctx context.Context, def *job.Definition, entry *runlog.ExecutionLog) error {
	subject := fmt.Sprintf("[Store Scraper] %s FAILED", def.Name)
	return m.sendReport(ctx, def, entry, subject)
}

func (m *Mailer) sendReport(_ context.Context, def *job.Definition, entry *runlog.ExecutionLog, subject string) error {
	if !m.Configured() {
		m.log.LogWarnf("SMTP not configured, skipping notification for job %s", def.ID)
		return nil
	}

	body := buildReport(def, entry)

	var failures []error
	for _, recipient := range def.EmailRecipients {
		if err := m.send(recipient, subject, body); err != nil {
			m.log.LogErrorf("failed to notify %s for job %s: %v", recipient, def.ID, err)
			failures = append(failures, fmt.Errorf("%s: %w", recipient, err))
			continue
		}
		m.log.LogInfof("run report sent to %s for job %s", recipient, def.ID)
	}
	return errors.Join(failures...)
}

// buildReport renders the plain-text run summary with a per-category table.
func buildReport(def *job.Definition, entry *runlog.ExecutionLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:      %s\n", def.Name)
	fmt.Fprintf(&b, "Status:   %s\n", entry.Status)
	fmt.Fprintf(&b, "Started:  %s\n", entry.StartedAt.Format(time.RFC1123))
	if entry.CompletedAt != nil {
		fmt.Fprintf(&b, "Finished: %s\n", entry.CompletedAt.Format(time.RFC1123))
	}
	fmt.Fprintf(&b, "Duration: %.0fs\n\n", entry.DurationSeconds)

	fmt.Fprintf(&b, "Products scraped: %d\n", entry.TotalProductsScraped)
	fmt.Fprintf(&b, "  added:   %d\n", entry.ProductsAdded)
	fmt.Fprintf(&b, "  updated: %d\n", entry.ProductsUpdated)
	fmt.Fprintf(&b, "  failed:  %d\n\n", entry.ProductsFailed)

	if entry.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error: %s\n\n", entry.ErrorMessage)
	}

	if len(entry.CategoriesProcessed) > 0 {
		b.WriteString("Categories:\n")
		for _, c := range entry.CategoriesProcessed {
			if c.Status == runlog.CategorySuccess {
				fmt.Fprintf(&b, "  [ok]   %-40s %d products\n", c.DisplayName, c.ProductCount)
			} else {
				fmt.Fprintf(&b, "  [fail] %-40s %s\n", c.DisplayName, c.Error)
			}
		}
	}
	return b.String()
}

func (m *Mailer) send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.fromName, m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if m.useTLS {
		return m.sendWithTLS(addr, auth, to, msg.String())
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg.String()))
}

// sendWithTLS connects over implicit TLS, falling back to STARTTLS when the
// server does not speak TLS on the wire directly.
func (m *Mailer) sendWithTLS(addr string, auth smtp.Auth, to, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.host})
	if err != nil {
		return m.sendWithSTARTTLS(addr, auth, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	return m.transact(client, auth, to, msg)
}

func (m *Mailer) sendWithSTARTTLS(addr string, auth smtp.Auth, to, msg string) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("connect to smtp server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
		return fmt.Errorf("start tls: %w", err)
	}
	return m.transact(client, auth, to, msg)
}

func (m *Mailer) transact(client *smtp.Client, auth smtp.Auth, to, msg string) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}
	return client.Quit()
}
