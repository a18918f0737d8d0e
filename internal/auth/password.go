// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import (
	"crypto/rand"
	"unicode"

	"github.com/samber/oops"
)

// Password policy defaults.
const (
	DefaultMinPasswordLength = 8
	DefaultPasswordLength    = 16
)

// passwordAlphabet is the character set GeneratePassword draws from. It
// covers all four character classes required by ValidatePassword.
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

// ValidatePassword checks a candidate password against the policy:
// at least minLength characters and at least one uppercase letter, one
// lowercase letter, one digit, and one non-alphanumeric character.
// The returned error carries the first failing reason, checked in that order.
func ValidatePassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if len(password) < minLength {
		return oops.Code(CodeWeakPassword).
			With("min_length", minLength).
			Errorf("password must be at least %d characters", minLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}

	switch {
	case !upper:
		return oops.Code(CodeWeakPassword).Errorf("password must contain an uppercase letter")
	case !lower:
		return oops.Code(CodeWeakPassword).Errorf("password must contain a lowercase letter")
	case !digit:
		return oops.Code(CodeWeakPassword).Errorf("password must contain a digit")
	case !special:
		return oops.Code(CodeWeakPassword).Errorf("password must contain a non-alphanumeric character")
	}
	return nil
}

// GeneratePassword returns a random password of the given length drawn from
// passwordAlphabet using crypto/rand. Bytes outside the largest multiple of
// the alphabet size are rejected and redrawn, so every character is selected
// uniformly (plain modular reduction would bias toward early alphabet
// characters).
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultPasswordLength
	}

	// Largest byte range usable without bias.
	limit := 256 - 256%len(passwordAlphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("AUTH_RANDOM_FAILED").
				With("operation", "crypto/rand.Read").
				Wrap(err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, passwordAlphabet[int(b)%len(passwordAlphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
