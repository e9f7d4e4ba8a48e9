// Package session – validate.go checks and formats outbound addresses and
// message text before any client I/O happens.
package session

import (
	"errors"
	"fmt"
	"strings"
)

// conversationSuffix is the protocol's direct-chat address suffix.
const conversationSuffix = "@s.whatsapp.net"

// Validation errors, surfaced synchronously before any I/O.
var (
	ErrInvalidAddress = errors.New("invalid recipient address")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrMessageTooLong = errors.New("message text exceeds maximum length")
)

// ValidateAddress normalizes a raw phone number into a full protocol
// address under the given country code. A leading zero is replaced by the
// country code ("0501234567" under 972 becomes "972501234567"); numbers
// already carrying the country code pass through; anything too short or
// too long to be a phone number is rejected.
func ValidateAddress(raw, countryCode string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidAddress, raw)
	}

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	case strings.HasPrefix(digits, countryCode):
		// Already international.
	default:
		digits = countryCode + digits
	}

	// E.164 numbers are 8–15 digits including the country code.
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return digits + conversationSuffix, nil
}

// StripConversationSuffix returns the bare address part before any "@"
// conversation suffix.
func StripConversationSuffix(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		return address[:i]
	}
	return address
}

// validateText rejects empty or oversized message text.
func validateText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if maxLen > 0 && len(text) > maxLen {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLong, len(text), maxLen)
	}
	return nil
}
