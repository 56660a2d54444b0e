package forum

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits holds the content validation limits.
type Limits struct {
	MaxSubjectLength int // in characters
	MaxBodySize      int // in bytes
	MaxCommentLength int // in characters
	MaxPollChoices   int
}

// DefaultLimits returns the default content limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSubjectLength: DefaultMaxSubjectLength,
		MaxBodySize:      DefaultMaxBodySize,
		MaxCommentLength: DefaultMaxCommentLength,
		MaxPollChoices:   DefaultMaxPollChoices,
	}
}

// PostInput is the member-supplied part of a message.
type PostInput struct {
	Subject string
	Body    string
}

// ValidatePost checks a post against the limits. Replies may omit the subject.
func ValidatePost(in PostInput, limits Limits, subjectRequired bool) error {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		if subjectRequired {
			return &ValidationError{Field: "subject", Message: "cannot be empty"}
		}
	} else if err := checkLine("subject", subject, limits.MaxSubjectLength); err != nil {
		return err
	}

	if strings.TrimSpace(in.Body) == "" {
		return &ValidationError{Field: "body", Message: "cannot be empty"}
	}
	if len(in.Body) > limits.MaxBodySize {
		return &ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("exceeds maximum size of %d bytes", limits.MaxBodySize),
		}
	}
	if !utf8.ValidString(in.Body) {
		return &ValidationError{Field: "body", Message: "contains invalid UTF-8"}
	}
	return nil
}

// checkLine validates single-line text: valid UTF-8, no control characters,
// at most maxLen characters.
func checkLine(field, s string, maxLen int) error {
	if !utf8.ValidString(s) {
		return &ValidationError{Field: field, Message: "contains invalid UTF-8"}
	}
	if n := utf8.RuneCountInString(s); n > maxLen {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", maxLen),
		}
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return &ValidationError{Field: field, Message: "contains control characters"}
		}
	}
	return nil
}

// checkComment validates a report comment. Comments may be empty.
func checkComment(s string, limits Limits) error {
	if !utf8.ValidString(s) {
		return &ValidationError{Field: "comment", Message: "contains invalid UTF-8"}
	}
	if utf8.RuneCountInString(s) > limits.MaxCommentLength {
		return &ValidationError{
			Field:   "comment",
			Message: fmt.Sprintf("exceeds maximum length of %d characters", limits.MaxCommentLength),
		}
	}
	return nil
}
