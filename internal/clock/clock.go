// Package clock provides a seam for the kernel's notion of time, so that
// inode access/modify/change timestamps can be driven deterministically in
// tests instead of from the wall clock.
package clock

import "time"

// Clock knows the current time. Used wherever the kernel would otherwise
// call time.Now() directly, so that tests can inject a fixed or stepped
// clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}
