package models

import (
	"fmt"
	"net/mail"
	"strings"

	dErrors "ndaflow/pkg/domain-errors"
)

// Validate checks a send request before anything is stored.
func Validate(req SendRequest) error {
	if req.AgreementID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "agreement id is required")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if HasLineBreak(req.Subject) {
		return dErrors.New(dErrors.CodeValidation, "subject must not contain line breaks")
	}
	if strings.TrimSpace(req.Body) == "" {
		return dErrors.New(dErrors.CodeValidation, "body is required")
	}
	if len(trimAll(req.To)) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one To recipient is required")
	}
	total := 0
	for _, list := range []struct {
		field string
		addrs []string
	}{{"to", req.To}, {"cc", req.Cc}, {"bcc", req.Bcc}} {
		for _, addr := range list.addrs {
			if strings.TrimSpace(addr) == "" {
				continue
			}
			if err := ValidateAddress(addr); err != nil {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s: %s", list.field, dErrors.MessageOf(err)))
			}
			total++
		}
	}
	if total > MaxRecipients {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d recipients are allowed", MaxRecipients))
	}
	return nil
}

// ValidateAddress accepts a single bare address such as "jane@agency.gov".
// Display names, groups and lists are rejected.
func ValidateAddress(raw string) error {
	if HasLineBreak(raw) {
		return dErrors.New(dErrors.CodeValidation, "address must not contain line breaks")
	}
	addr := strings.TrimSpace(raw)
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid email address %q", addr))
	}
	return nil
}

func HasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}
