// Package ident generates and validates entity identifiers and timestamps
// for the commit log. Identifiers must be URL- and filename-safe because the
// backend uses them as repository paths.
package ident

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idPattern is the set of characters the backend accepts in entity ids.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// IsValid reports whether id is a well-formed entity identifier.
func IsValid(id string) bool {
	return idPattern.MatchString(id)
}

// New returns a fresh collision-resistant identifier. UUIDs contain only
// hex digits and hyphens, so generated ids always satisfy IsValid.
func New() string {
	return uuid.NewString()
}

var (
	lastMu sync.Mutex
	last   time.Time
)

// Now returns the current UTC time, nudged forward by a nanosecond when the
// clock reads the same instant twice. Commit timestamps only need to be
// monotonic enough for the backend to order same-entity commits.
func Now() time.Time {
	lastMu.Lock()
	defer lastMu.Unlock()

	now := time.Now().UTC()
	if !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	last = now
	return now
}
