// Package rsyncos bundles the process-level inputs (stdio streams,
// restriction toggles) that the rest of the module treats as an
// injectable environment rather than reaching for os.Stdin/os.Stdout
// directly. This mirrors the teacher's convention of threading an *Env
// through maincmd, rsyncd and the client path so that tests can swap in
// pipes without touching global state.
package rsyncos

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Std is the minimal stdio triple used by command and connection
// handlers that do not need the full Env (e.g. spawned SSH sessions).
type Std struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Env is the full process environment threaded through maincmd.Main. A
// nil Logf-less Env falls back to the standard library logger.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// DontRestrict disables the optional filesystem sandboxing
	// (internal/restrict) for this process invocation.
	DontRestrict bool

	// restrictOverride, when set via WithRestrict, forces the return
	// value of Restrict() regardless of DontRestrict.
	restrictOverride *bool
}

// NewStdEnv returns an Env wired to the process's real stdio.
func NewStdEnv() *Env {
	return &Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Logf writes a formatted diagnostic line to Stderr (or the standard
// logger if Stderr is nil), matching the teacher's osenv.Logf call sites.
func (e *Env) Logf(format string, args ...interface{}) {
	if e == nil || e.Stderr == nil {
		log.Printf(format, args...)
		return
	}
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// Restrict reports whether filesystem sandboxing should be attempted.
func (e *Env) Restrict() bool {
	if e == nil {
		return true
	}
	if e.restrictOverride != nil {
		return *e.restrictOverride
	}
	return !e.DontRestrict
}

// WithRestrict overrides the Restrict() return value, used by nested
// daemon connection handlers that are already sandboxed and must not
// apply additional restriction layers.
func (e *Env) WithRestrict(v bool) {
	e.restrictOverride = &v
}
