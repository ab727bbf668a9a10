// Package code derives and normalizes referral codes. Codes are uppercase
// alphanumeric tokens derived from a human seed (typically the local part
// of an email) plus entropy, so they stay recognizable without being
// guessable.
package code

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	charset   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	MaxLength = 32
	minBase   = 3
)

// Normalize maps a raw code to canonical lookup form: uppercase,
// alphanumerics only, length-capped. Applied at issuance and at every
// lookup so user input is case and format insensitive.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= MaxLength {
			break
		}
	}
	return b.String()
}

// Base reduces a seed to the leading token of a code. Seeds that normalize
// to fewer than three characters fall back to a generic prefix so codes
// never leak how short an email was.
func Base(seed string) string {
	if at := strings.IndexByte(seed, '@'); at >= 0 {
		seed = seed[:at]
	}
	base := Normalize(seed)
	if len(base) > 8 {
		base = base[:8]
	}
	if len(base) < minBase {
		base = "REF"
	}
	return base
}

// WithRandomSuffix appends random charset characters until the code reaches
// length. Collision checking is the caller's responsibility.
func WithRandomSuffix(base string, length int) (string, error) {
	if length > MaxLength {
		length = MaxLength
	}
	if len(base) >= length {
		return base[:length], nil
	}

	var b strings.Builder
	b.WriteString(base)
	for b.Len() < length {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b.WriteByte(charset[idx.Int64()])
	}
	return b.String(), nil
}

// WithTimestampSuffix appends a nanosecond-derived suffix. Used as the
// guaranteed-unique fallback after random attempts keep colliding.
func WithTimestampSuffix(base string, now time.Time) string {
	suffix := strings.ToUpper(strconv.FormatInt(now.UnixNano(), 36))
	code := base + suffix
	if len(code) > MaxLength {
		code = code[len(code)-MaxLength:]
	}
	return code
}
