// Package queue provides the DB-backed job queue: deterministic job
// identity, an enqueuer, and the worker pool that claims and runs jobs.
package queue

import (
	"strings"
	"unicode"
)

// JobID builds the deterministic id for a unit of work: the queue name,
// a colon, then the slugged unit parts joined by colons. Enqueueing the
// same unit twice therefore collides on the ledger's primary key and the
// second enqueue is a no-op.
func JobID(queue string, unit ...string) string {
	parts := make([]string, 0, len(unit)+1)
	parts = append(parts, queue)
	for _, u := range unit {
		if s := Slug(u); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// Slug lowercases and collapses a unit part to [a-z0-9-]. Runs of other
// characters become a single hyphen.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		} else {
			pendingHyphen = true
		}
	}
	return b.String()
}
