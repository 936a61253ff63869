// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Aleutian components.
//

// Package validation provides input validation utilities for identifiers
// that become storage keys or file names.
//
// Run identifiers are embedded in BadgerDB keys ("model/<run>") and echoed
// in URLs and log lines, so they are restricted to a conservative
// character set. Separators, whitespace, and control characters are
// rejected rather than escaped.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxRunIDLength bounds a run identifier.
const MaxRunIDLength = 128

// ErrInvalidRunID is returned for identifiers outside the allowed format.
var ErrInvalidRunID = errors.New("invalid run id")

// runIDPattern matches valid run identifiers.
// Allows: letters, digits, dots, underscores, hyphens; must start with a
// letter or digit.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// ValidateRunID validates a run identifier.
//
// Valid identifiers:
//   - 1-128 characters
//   - Letters, digits, '.', '_', '-'
//   - First character is a letter or digit
//
// Example:
//
//	if err := validation.ValidateRunID(run); err != nil {
//	    return fmt.Errorf("storing model: %w", err)
//	}
//	// Safe to use as a key suffix
func ValidateRunID(run string) error {
	if run == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRunID)
	}
	if len(run) > MaxRunIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidRunID, MaxRunIDLength)
	}
	if !runIDPattern.MatchString(run) {
		return fmt.Errorf("%w: %q (letters, digits, '.', '_', '-' only)", ErrInvalidRunID, run)
	}
	return nil
}

// ValidateRunIDs validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateRunIDs(runs []string) error {
	var invalid []string
	for _, r := range runs {
		if ValidateRunID(r) != nil {
			invalid = append(invalid, fmt.Sprintf("%q", r))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRunID, strings.Join(invalid, ", "))
	}
	return nil
}

// SanitizeRunID trims surrounding whitespace and validates the result.
func SanitizeRunID(run string) (string, error) {
	trimmed := strings.TrimSpace(run)
	if err := ValidateRunID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
