// Package message renders outbound mail as RFC 5322 / MIME bytes.
package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	dErrors "ndaflow/pkg/domain-errors"
)

// base64LineLength is the maximum encoded line length allowed by RFC 2045.
const base64LineLength = 76

// Attachment is one binary part.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text email with an optional attachment. Bcc recipients
// belong in the envelope and are never written as a header.
type Message struct {
	From       string
	To         []string
	Cc         []string
	Bcc        []string
	Subject    string
	Body       string
	MessageID  string
	Date       time.Time
	Attachment *Attachment
}

// Envelope is what the transport needs besides the rendered bytes.
type Envelope struct {
	From       string
	Recipients []string
	MessageID  string
}

func (m *Message) Envelope() Envelope {
	recipients := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	recipients = append(recipients, m.To...)
	recipients = append(recipients, m.Cc...)
	recipients = append(recipients, m.Bcc...)
	return Envelope{From: m.From, Recipients: recipients, MessageID: m.MessageID}
}

// Validate rejects header values that could inject extra headers.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return dErrors.New(dErrors.CodeValidation, "from address is required")
	}
	if len(m.To) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one recipient is required")
	}
	check := func(field, value string) error {
		if strings.ContainsAny(value, "\r\n") {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("header %s contains a line break", field))
		}
		return nil
	}
	if err := check("From", m.From); err != nil {
		return err
	}
	if err := check("Subject", m.Subject); err != nil {
		return err
	}
	if err := check("Message-ID", m.MessageID); err != nil {
		return err
	}
	for field, list := range map[string][]string{"To": m.To, "Cc": m.Cc, "Bcc": m.Bcc} {
		for _, addr := range list {
			if err := check(field, addr); err != nil {
				return err
			}
		}
	}
	return nil
}

// Render validates the message and produces its wire form. With an attachment
// the result is multipart/mixed; without one it is a single text/plain part.
func (m *Message) Render() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", m.From)
	writeHeader(&buf, "To", strings.Join(m.To, ", "))
	if len(m.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(m.Cc, ", "))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("UTF-8", m.Subject))
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	if m.MessageID != "" {
		writeHeader(&buf, "Message-ID", m.MessageID)
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if m.Attachment == nil {
		writeHeader(&buf, "Content-Type", "text/plain; charset=UTF-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, m.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", "multipart/mixed; boundary=\""+mw.Boundary()+"\"")
	buf.WriteString("\r\n")

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if err := writeQuotedPrintable(textPart, m.Body); err != nil {
		return nil, err
	}

	contentType := m.Attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filePart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {`attachment; filename="` + SanitizeFilename(m.Attachment.Filename) + `"`},
	})
	if err != nil {
		return nil, fmt.Errorf("create attachment part: %w", err)
	}
	if err := writeBase64Lines(filePart, m.Attachment.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// SanitizeFilename removes characters that would break the quoted
// Content-Disposition filename parameter.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '"' || r == '\r' || r == '\n' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "document"
	}
	return cleaned
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return nil
}

func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(base64LineLength, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return fmt.Errorf("encode attachment: %w", err)
		}
		encoded = encoded[n:]
	}
	return nil
}
