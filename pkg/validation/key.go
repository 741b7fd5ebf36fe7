// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided snapshot keys.
//
// Keys arrive from command lines, file names and HTTP paths and end up as
// badger keys and URL paths. Restricting them to a small alphabet keeps
// them printable and free of path traversal segments.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxKeyLength bounds a snapshot key in bytes.
const MaxKeyLength = 256

// ErrInvalidKey wraps every key validation failure.
var ErrInvalidKey = errors.New("invalid snapshot key")

// keyPattern matches slash-separated segments. A segment starts with a
// letter, digit or underscore, so "." and ".." never appear as segments.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*(/[A-Za-z0-9_][A-Za-z0-9._-]*)*$`)

var invalidKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ValidateKey validates a snapshot key.
//
// Valid keys:
//   - 1-256 bytes
//   - letters, digits, '.', '_' and '-'
//   - '/' between non-empty segments, none starting with '.' or '-'
//
// Example:
//
//	if err := validation.ValidateKey(key); err != nil {
//	    return fmt.Errorf("put: %w", err)
//	}
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q (use letters, digits, '.', '_', '-' and '/' between segments)", ErrInvalidKey, key)
	}
	return nil
}

// SanitizeKey turns a file name or loose user input into a valid key.
// Runs of other characters become '-', and a segment starting with '.' or
// '-' gets a leading '_'. Empty segments are still an error.
//
//	key, err := validation.SanitizeKey("my config")  // "my-config"
//	key, err = validation.SanitizeKey(".env")         // "_.env"
func SanitizeKey(key string) (string, error) {
	segs := strings.Split(strings.Trim(strings.TrimSpace(key), "/"), "/")
	for i, seg := range segs {
		seg = invalidKeyChars.ReplaceAllString(seg, "-")
		if strings.HasPrefix(seg, ".") || strings.HasPrefix(seg, "-") {
			seg = "_" + seg
		}
		segs[i] = seg
	}
	out := strings.Join(segs, "/")
	if err := ValidateKey(out); err != nil {
		return "", err
	}
	return out, nil
}
