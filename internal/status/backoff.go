// ABOUTME: Pure backoff schedule for narration channel reconnects.
// ABOUTME: Doubling delay from an initial value up to a fixed ceiling.

package status

import "time"

// Backoff returns the reconnect delay for the given attempt number, starting
// at initial for attempt 0 and doubling per attempt up to ceiling. It is a
// pure function of its inputs so the schedule can be tested in isolation.
func Backoff(initial, ceiling time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		return 0
	}
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
