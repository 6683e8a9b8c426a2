// Package attach stages temporary per-turn file attachments.
//
// Each selected file moves through placeholder -> uploading -> processed or
// error. Uploads run in the background and report fractional progress; the
// attachment is invisible to dispatch until it reaches processed, and the
// whole turn is blocked while anything is still uploading. Error is terminal:
// a failed attachment is never retried, only removed.
//
// Identity follows the upload: before completion an attachment is known by a
// client placeholder id, afterwards by the server file id.
package attach
