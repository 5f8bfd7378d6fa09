//go:build linux

package session

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var quietMu sync.Mutex

// SuppressOutput points file descriptors 1 and 2 at the null device while fn
// runs, then restores them. It silences output written by native code that
// bypasses os.Stdout. The redirection is process-wide.
func SuppressOutput(fn func() error) error {
	quietMu.Lock()
	defer quietMu.Unlock()

	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fn()
	}
	defer devnull.Close()

	saved := make([]int, 0, 2)
	for _, fd := range []int{1, 2} {
		dup, err := unix.Dup(fd)
		if err != nil {
			restore(saved)
			return fn()
		}
		saved = append(saved, dup)
		if err := unix.Dup3(int(devnull.Fd()), fd, 0); err != nil {
			restore(saved)
			return fn()
		}
	}
	defer restore(saved)
	return fn()
}

func restore(saved []int) {
	for i, dup := range saved {
		_ = unix.Dup3(dup, i+1, 0)
		_ = unix.Close(dup)
	}
}
