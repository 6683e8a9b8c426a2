// Package orchestrator is the coordination core for one user turn.
//
// A turn moves through idle -> staging-gate -> dispatching ->
// awaiting-response -> reconciling -> idle, or drops to failed and back to
// idle from any non-terminal state. Submission is gated on attachment
// staging: nothing is sent while an upload is in flight, and an empty turn
// with no processed attachment is rejected without a network call.
//
// The orchestrator is the single owner of the transcript, the model
// selection, the augmentation toggles, and the attachment set. A narration
// channel is opened immediately before each dispatch and torn down at the
// terminal result; responses correlated to a superseded turn are discarded
// without touching any state.
package orchestrator
