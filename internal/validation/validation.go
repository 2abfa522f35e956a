// Package validation provides input validation for the PiTrust API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for free-text fields.
const MaxStringLength = 10000

// Payment amount bounds in Pi. The upper bound guards against fat-fingered
// payout requests, not against the protocol itself.
const (
	MinAmount = 0.0000001
	MaxAmount = 10000
)

var (
	// piAddressRegex validates Pi wallet public keys (Stellar-derived
	// ed25519 account IDs: 'G' + 55 base32 chars).
	piAddressRegex = regexp.MustCompile(`^G[A-Z2-7]{55}$`)
	// uidRegex validates platform user identifiers.
	uidRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidPiAddress checks if a string is a valid Pi wallet address.
func IsValidPiAddress(addr string) bool {
	return piAddressRegex.MatchString(addr)
}

// IsValidUID checks if a string is a well-formed user identifier.
func IsValidUID(uid string) bool {
	return uidRegex.MatchString(uid)
}

// IsValidAmount checks that a payment amount is within protocol bounds.
func IsValidAmount(amount float64) bool {
	return amount >= MinAmount && amount <= MaxAmount
}

// SanitizeString trims whitespace, strips null bytes, and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeAddress normalizes a Pi wallet address.
func SanitizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}
