package scraper

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

// Kind classifies a scrape failure.
type Kind string

// Failure kinds.
const (
	// KindInvocation covers a missing binary, a non-zero exit, or a deadline.
	KindInvocation Kind = "invocation"
	// KindParse covers output that is not the expected JSON, including an error object.
	KindParse Kind = "parse"
	// KindEmpty covers output with no usable records.
	KindEmpty Kind = "empty"
)

// Error is a classified scrape failure. It matches menu.ErrScrapeFailed with errors.Is.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scrape %s (%s): %v", e.URL, e.Kind, e.Err)
}

// Unwrap exposes both the scrape sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{menu.ErrScrapeFailed, e.Err}
}

// KindOf returns the failure kind of err, or "" when err is not a scrape failure.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
