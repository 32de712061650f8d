package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/nightbox/internal/logging"
)

// Notifier delivers a finished report to its recipients.
type Notifier interface {
	SendReport(ctx context.Context, recipients []string, subject, body, filename string, attachment []byte) error
}

// SMTPConfig carries mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Logger   *logging.Logger
}

// Mailer sends reports as email with a CSV attachment.
type Mailer struct {
	cfg    SMTPConfig
	logger *logging.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a Mailer from config.
func NewMailer(cfg SMTPConfig) *Mailer {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Mailer{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// SendReport builds a multipart MIME message with the CSV attached and
// delivers it. A nil recipient list is an error so a misconfigured run
// fails loudly instead of silently dropping the report.
func (m *Mailer) SendReport(ctx context.Context, recipients []string, subject, body, filename string, attachment []byte) error {
	if len(recipients) == 0 {
		return errors.New("no report recipients configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.buildMessage(recipients, subject, body, filename, attachment)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	start := time.Now()
	if err := m.send(addr, auth, m.cfg.From, recipients, msg); err != nil {
		return errors.Wrap(err, "send report mail")
	}
	m.logger.Info("report mail sent",
		"recipients", len(recipients),
		"attachment", filename,
		"duration", time.Since(start),
	)
	return nil
}

func (m *Mailer) buildMessage(recipients []string, subject, body, filename string, attachment []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, errors.Wrap(err, "create text part")
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, errors.Wrap(err, "write text part")
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", "text/csv")
	fileHeader.Set("Content-Transfer-Encoding", "base64")
	fileHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	part, err = mw.CreatePart(fileHeader)
	if err != nil {
		return nil, errors.Wrap(err, "create attachment part")
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	if _, err := part.Write([]byte(encoded)); err != nil {
		return nil, errors.Wrap(err, "write attachment part")
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}
	return buf.Bytes(), nil
}
