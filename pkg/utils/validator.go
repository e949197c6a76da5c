package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MaxCommentLength bounds approver comments stored in the audit ledger
const MaxCommentLength = 2000

// MaxSubmissionDataBytes bounds the JSON payload attached to a request
const MaxSubmissionDataBytes = 64 * 1024

// ValidateComment checks an approver comment for storage
func ValidateComment(comment string) error {
	if len(comment) > MaxCommentLength {
		return fmt.Errorf("comment exceeds %d characters", MaxCommentLength)
	}
	return nil
}

// HasComment reports whether a comment carries any visible content
func HasComment(comment string) bool {
	return strings.TrimSpace(comment) != ""
}

// ValidateSubmissionData checks that submission data is valid JSON of
// bounded size. Empty data is allowed.
func ValidateSubmissionData(data string) error {
	if data == "" {
		return nil
	}
	if len(data) > MaxSubmissionDataBytes {
		return fmt.Errorf("submission data exceeds %d bytes", MaxSubmissionDataBytes)
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("submission data must be valid JSON")
	}
	return nil
}

// SanitizeString removes potentially harmful characters
func SanitizeString(s string) string {
	// Remove control characters and potential SQL injection patterns
	sanitized := regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
	return sanitized
}
