package validator

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	otpCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)
)

// DateLayout is the calendar date format accepted on the wire
const DateLayout = "2006-01-02"

func ValidateEmail(email string) bool {
	if email == "" {
		return false
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return false
	}
	return emailRegex.MatchString(strings.ToLower(email))
}

func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ValidateOTPCode accepts six digit authenticator codes
func ValidateOTPCode(code string) bool {
	return otpCodeRegex.MatchString(code)
}

func ValidateDate(value string) bool {
	_, err := time.Parse(DateLayout, value)
	return err == nil
}
