package internal

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInvalidMode     = errors.New("invalid mode")
	ErrWrongGoroutine  = errors.New("locator used from a goroutine it is not confined to")
)

func invalidArgument(param string) error {
	return fmt.Errorf("%w: %s cannot be empty", ErrInvalidArgument, param)
}

// NotFoundError is returned when a search completes without a match and the rule raises on absence.
type NotFoundError struct {
	Mode    Mode
	Query   string
	Context string
}

func (e *NotFoundError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("not found: %s [%s]", e.Context, e.Mode)
	}
	return fmt.Sprintf("not found: %s in %s [%s]", e.Query, e.Context, e.Mode)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CallSite is a source location outside the library.
type CallSite struct {
	Function string
	File     string
	Line     int
}

func (s CallSite) String() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// SiteError annotates an error with the call site that triggered it.
type SiteError struct {
	Site CallSite
	Err  error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("%v (called by %s)", e.Err, e.Site)
}

func (e *SiteError) Unwrap() error {
	return e.Err
}
