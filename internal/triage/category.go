package triage

import (
	"fmt"
	"log/slog"
	"strings"

	"mailtriage/internal/observability"
)

type Category string

const (
	Complaint  Category = "Complaint"
	Suggestion Category = "Suggestion"
	Question   Category = "Question"
	Praise     Category = "Praise"

	// DefaultCategory replaces anything outside the allowed set.
	DefaultCategory = Question
)

// Categories lists the allowed values in prompt order.
var Categories = []Category{Complaint, Suggestion, Question, Praise}

// ParseCategory reports whether s, once trimmed, names an allowed category.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// ValidateCategory returns v as a Category when it is an allowed name and the
// default category otherwise, logging a warning for the substitution.
func ValidateCategory(logger *slog.Logger, v any) Category {
	if s, ok := v.(string); ok {
		if c, ok := ParseCategory(s); ok {
			return c
		}
	}
	observability.CategorySubstitutions.Inc()
	if logger != nil {
		logger.Warn("invalid category from model, using default",
			"value", fmt.Sprintf("%v", v), "default", string(DefaultCategory))
	}
	return DefaultCategory
}
