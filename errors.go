package finder

import "github.com/AnatoleLucet/finder/internal"

var (
	// ErrInvalidArgument reports a missing required parameter. It is returned regardless of the not-found policy.
	ErrInvalidArgument = internal.ErrInvalidArgument
	// ErrNotFound reports a search that completed without a match, when the rule raises on not found.
	ErrNotFound = internal.ErrNotFound
	// ErrInvalidMode reports a mode or scope outside the known values.
	ErrInvalidMode = internal.ErrInvalidMode
	// ErrWrongGoroutine reports a confined locator used from another goroutine.
	ErrWrongGoroutine = internal.ErrWrongGoroutine
)

type (
	NotFoundError = internal.NotFoundError

	CallSite = internal.CallSite
	// SiteError wraps a lookup error with the call site that triggered it.
	SiteError = internal.SiteError
	// CallSiteFunc reports the caller to blame for an error, if it can tell.
	CallSiteFunc = internal.CallSiteFunc
)

// RuntimeCallSites finds the caller by walking the goroutine stack.
// It degrades to reporting nothing when frames are unavailable.
var RuntimeCallSites CallSiteFunc = internal.RuntimeCallSite
