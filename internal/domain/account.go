package domain

import (
	"strings"
	"time"
)

// Account: учётная запись покупателя.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// NormalizeEmail приводит email к виду, по которому ищется уникальность.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
