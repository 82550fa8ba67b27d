package services

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameLen = 3
	minFullnameLen = 6
	minPasswordLen = 8
)

// ValidationErrors maps a field name to its first failing rule.
type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	if _, exists := v[field]; !exists {
		v[field] = message
	}
}

func validateRegistration(in RegisterInput) ValidationErrors {
	errs := make(ValidationErrors)

	validateLength(errs, "username", in.Username, minUsernameLen)
	validateLength(errs, "fullname", in.Fullname, minFullnameLen)

	if in.Email == "" {
		errs.Add("email", "email cannot be empty")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		errs.Add("email", "invalid email address")
	}

	validateLength(errs, "password", in.Password, minPasswordLen)
	if len(in.Password) > maxPasswordBytes {
		errs.Add("password", fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}

	return errs
}

func validateLength(errs ValidationErrors, field, value string, minLen int) {
	if value == "" {
		errs.Add(field, field+" cannot be empty")
		return
	}
	if utf8.RuneCountInString(value) < minLen {
		errs.Add(field, fmt.Sprintf("%s must be at least %d characters", field, minLen))
	}
}

func normalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
