// Package jvlog is the process-wide logger used across jvspatial-go.
//
// It wraps the standard library's log package the same way nornicdb's
// packages call log.Printf/log.Fatalf directly rather than reaching for
// a structured logging library: a package-level *log.Logger prefixed
// with the calling component's name, nothing more.
package jvlog

import (
	"log"
	"os"
)

// New returns a *log.Logger prefixed "[jvspatial:<component>] ", writing
// to stderr with the standard date/time flags, mirroring the ad-hoc
// log.New calls scattered through nornicdb's server and storage
// packages.
func New(component string) *log.Logger {
	return log.New(os.Stderr, "[jvspatial:"+component+"] ", log.LstdFlags)
}

// Default is the logger used by packages that don't need their own
// component prefix.
var Default = New("jvspatial")
