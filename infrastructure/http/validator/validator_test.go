package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("head@demo.local"))
	assert.True(t, ValidateEmail("A.Auditor+ops@Example.COM"))
	assert.False(t, ValidateEmail(""))
	assert.False(t, ValidateEmail("no-at-sign"))
	assert.False(t, ValidateEmail("user@host"))
}

func TestValidateOTPCode(t *testing.T) {
	assert.True(t, ValidateOTPCode("012345"))
	assert.False(t, ValidateOTPCode("12345"))
	assert.False(t, ValidateOTPCode("12a456"))
	assert.False(t, ValidateOTPCode(" 123456"))
}

func TestValidateDate(t *testing.T) {
	assert.True(t, ValidateDate("2025-03-31"))
	assert.False(t, ValidateDate("2025-02-30"))
	assert.False(t, ValidateDate("31/03/2025"))
}

func TestValidateRequired(t *testing.T) {
	assert.True(t, ValidateRequired("x"))
	assert.False(t, ValidateRequired("  \t"))
}
