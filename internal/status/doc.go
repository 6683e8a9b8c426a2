// Package status maintains the narration channel: one reconnecting SSE
// session that streams human-readable progress for the request it is scoped
// to. The channel is purely informational; its failures are logged and
// swallowed, and a request whose channel never connects still completes.
package status
