// Package memory reports how much physical memory the process could still use.
package memory

// Available returns the number of bytes of physical memory that are free or
// reclaimable. ok is false when the platform gives no answer.
func Available() (bytes int64, ok bool) {
	return available()
}
