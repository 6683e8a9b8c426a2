// Package stale provides a time-based set of retired identifiers used to
// silently discard responses from superseded turns.
package stale
