package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// bluetoothBaseSuffix completes 16- and 32-bit UUIDs onto the Bluetooth SIG base UUID.
const bluetoothBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// ParseUUID converts a 16-bit ("ffe0"), 32-bit or 128-bit UUID, with or without
// dashes and an optional 0x prefix, into the lowercase dashed 128-bit form.
func ParseUUID(s string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(cleaned, "0x")
	cleaned = strings.ReplaceAll(cleaned, "-", "")

	switch len(cleaned) {
	case 4:
		cleaned = "0000" + cleaned + bluetoothBaseSuffix
	case 8:
		cleaned = cleaned + bluetoothBaseSuffix
	case 32:
	default:
		return "", fmt.Errorf("invalid UUID %q: expected 4, 8 or 32 hex digits", s)
	}

	u, err := uuid.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// NormalizeUUID is ParseUUID without the error; invalid input yields "".
func NormalizeUUID(s string) string {
	u, err := ParseUUID(s)
	if err != nil {
		return ""
	}
	return u
}

// ShortUUID returns the 16-bit form for UUIDs on the SIG base and the input otherwise.
func ShortUUID(s string) string {
	u := NormalizeUUID(s)
	if u == "" {
		return s
	}
	if strings.HasPrefix(u, "0000") && strings.HasSuffix(u, bluetoothBaseSuffix) {
		return u[4:8]
	}
	return u
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns canonical UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, s := range uuids {
		if s == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		u, err := ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("UUID at index %d: %w", i, err)
		}
		result = append(result, u)
	}
	return result, nil
}
