package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"ndaflow/internal/delivery/message"
	dErrors "ndaflow/pkg/domain-errors"
)

// SMTPConfig addresses one relay. Username empty disables AUTH.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTP delivers through a relay with STARTTLS when the server offers it.
type SMTP struct {
	cfg    SMTPConfig
	dialer net.Dialer
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, dialer: net.Dialer{Timeout: 10 * time.Second}}
}

// Send honours ctx by dialing with it and bounding the whole session by its deadline.
func (s *SMTP) Send(ctx context.Context, env message.Envelope, raw []byte) (string, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTransportFailure, "connect to mail server")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return "", classify(ctx, err, "greet mail server")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return "", classify(ctx, err, "start tls")
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return "", classify(ctx, err, "authenticate")
		}
	}
	if err := client.Mail(env.From); err != nil {
		return "", classify(ctx, err, "MAIL FROM")
	}
	for _, rcpt := range env.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return "", classify(ctx, err, "RCPT TO "+rcpt)
		}
	}
	w, err := client.Data()
	if err != nil {
		return "", classify(ctx, err, "DATA")
	}
	if _, err := w.Write(raw); err != nil {
		return "", classify(ctx, err, "write message")
	}
	if err := w.Close(); err != nil {
		return "", classify(ctx, err, "finish message")
	}
	_ = client.Quit()
	return env.MessageID, nil
}

// classify marks 5xx replies as permanent; everything else can be retried.
func classify(ctx context.Context, err error, step string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, fmt.Sprintf("smtp %s: %v", step, err))
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return dErrors.Wrap(err, dErrors.CodePermanentFailure, fmt.Sprintf("smtp %s rejected: %s", step, protoErr.Msg))
	}
	return dErrors.Wrap(err, dErrors.CodeTransportFailure, "smtp "+step)
}
