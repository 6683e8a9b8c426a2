// Package conversation holds the transcript model for the active
// conversation and the read-only client for persisted conversation history.
package conversation
