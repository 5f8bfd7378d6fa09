//go:build !linux

package session

// SuppressOutput runs fn unchanged on platforms without dup3.
func SuppressOutput(fn func() error) error {
	return fn()
}
