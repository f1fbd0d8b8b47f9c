// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// Preset names shipped with the library.
const (
	PresetNone    = "none"
	PresetMinimal = "minimal"
	PresetDefault = "default"
	PresetGDPR    = "gdpr"
	PresetHIPAA   = "hipaa"
	PresetPCIDSS  = "pci-dss"
)

var (
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	creditCardRe = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	jwtRe        = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ipv4Re       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// EmailPattern masks the local part, keeping at most its first two
// characters: user@host becomes us***@host.
func EmailPattern() Pattern {
	return Pattern{
		Name:   "email",
		Regexp: emailRe,
		Replace: func(match string) string {
			at := strings.IndexByte(match, '@')
			if at <= 0 {
				return match
			}
			keep := 2
			if at < keep {
				keep = at
			}
			return match[:keep] + "***" + match[at:]
		},
	}
}

// CreditCardPattern keeps the last four digits of a 13-19 digit card number,
// tolerating space or dash separators.
func CreditCardPattern() Pattern {
	return Pattern{
		Name:   "credit-card",
		Regexp: creditCardRe,
		Replace: func(match string) string {
			digits := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return r
				}
				return -1
			}, match)
			if len(digits) < 13 || len(digits) > 19 {
				return match
			}
			return "****" + digits[len(digits)-4:]
		},
	}
}

// JWTPattern redacts compact JWTs entirely.
func JWTPattern() Pattern {
	return Pattern{Name: "jwt", Regexp: jwtRe, Replacement: "[JWT_REDACTED]"}
}

// SSNPattern redacts US social security numbers.
func SSNPattern() Pattern {
	return Pattern{Name: "ssn", Regexp: ssnRe, Replacement: "[SSN_REDACTED]"}
}

// IPAddressPattern redacts IPv4 addresses.
func IPAddressPattern() Pattern {
	return Pattern{Name: "ip-address", Regexp: ipv4Re, Replacement: "[IP_REDACTED]"}
}

// FullPANPattern redacts card numbers entirely, keeping nothing. Required
// for PCI-DSS scope where even last-4 retention is out of policy.
func FullPANPattern() Pattern {
	return Pattern{Name: "pan", Regexp: creditCardRe, Replacement: "[PAN_REDACTED]"}
}

func literals(names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Literal(n)
	}
	return out
}

// minimalFields are the four canonical credential keys.
var minimalFields = literals("password", "token", "secret", "apiKey")

var defaultFields = literals(
	"password", "passwd", "pwd", "secret", "token", "apiKey", "api_key",
	"accessToken", "access_token", "refreshToken", "refresh_token",
	"authorization", "auth", "cookie", "session", "sessionToken",
	"privateKey", "private_key", "clientSecret", "client_secret",
	"ssn", "creditCard", "credit_card", "cardNumber", "card_number", "cvv",
)

var gdprFields = literals(
	"firstName", "lastName", "fullName", "name", "email", "address",
	"street", "city", "zipCode", "postalCode", "phone", "phoneNumber",
	"mobile", "dateOfBirth", "dob", "ip", "ipAddress",
)

var hipaaFields = literals(
	"mrn", "medicalRecord", "medicalRecordNumber", "diagnosis",
	"prescription", "insuranceId", "healthPlan", "patientId", "patientName",
)

var pciFields = literals(
	"pan", "cvv2", "cvc", "pin", "track1", "track2", "expiryDate", "expiry",
)

// NewPreset builds the named preset configuration. Unknown names are a
// configuration error. Preset configs are value objects: every call returns
// an equal config.
func NewPreset(name string) (Config, error) {
	switch strings.ToLower(name) {
	case PresetNone:
		return Config{}, nil
	case PresetMinimal:
		return Config{Enabled: true, Fields: minimalFields}, nil
	case PresetDefault:
		return defaultConfig(), nil
	case PresetGDPR:
		return Merge(defaultConfig(), Config{
			Enabled:  true,
			Fields:   gdprFields,
			Patterns: []Pattern{IPAddressPattern()},
		}), nil
	case PresetHIPAA:
		return Merge(defaultConfig(), Config{
			Enabled:  true,
			Fields:   hipaaFields,
			Patterns: []Pattern{SSNPattern()},
		}), nil
	case PresetPCIDSS:
		// the last-4 pattern must not run ahead of full PAN redaction
		cfg := defaultConfig()
		cfg.Patterns = []Pattern{EmailPattern(), JWTPattern(), FullPANPattern()}
		return Merge(cfg, Config{Enabled: true, Fields: pciFields}), nil
	}
	return Config{}, fmt.Errorf("sanitize: unknown preset %q", name)
}

func defaultConfig() Config {
	return Config{
		Enabled:  true,
		Fields:   defaultFields,
		Patterns: []Pattern{EmailPattern(), CreditCardPattern(), JWTPattern()},
	}
}
