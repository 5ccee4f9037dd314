package internal

import (
	"errors"
	"runtime"
	"strings"
)

const modulePath = "github.com/AnatoleLucet/finder"

// RuntimeCallSite walks the stack and returns the first frame outside the locator's own code.
// Test files count as callers. Stripped binaries or fully inlined callers may yield nothing.
func RuntimeCallSite() (CallSite, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return CallSite{}, false
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !libraryFrame(frame) {
			return CallSite{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			}, true
		}
		if !more {
			return CallSite{}, false
		}
	}
}

func libraryFrame(f runtime.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	return strings.HasPrefix(f.Function, modulePath+".") ||
		strings.HasPrefix(f.Function, modulePath+"/internal.")
}

// annotate wraps diagnosable errors with the caller's location when diagnostics are on.
func (e *Engine) annotate(err error) error {
	if err == nil || !e.rule.Diagnostics || e.callSites == nil {
		return err
	}

	var site *SiteError
	if errors.As(err, &site) {
		return err
	}

	if !errors.Is(err, ErrInvalidArgument) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidMode) {
		return err
	}

	s, ok := e.callSites()
	if !ok {
		return err
	}
	return &SiteError{Site: s, Err: err}
}

// Invalid reports a rejected argument of a lookup call, annotated like any other lookup error.
func (e *Engine) Invalid(param string) error {
	return e.annotate(invalidArgument(param))
}
