package memsink

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// lockPollInterval mirrors us_flock_timedwait_monotonic's re-poll
// cadence: Linux flock(2) has no timed variant, so a bounded wait is
// built from a non-blocking attempt re-tried on a short timer.
const lockPollInterval = time.Millisecond

// tryFlock attempts a single non-blocking exclusive lock, returning
// (false, nil) if another holder has it -- not an error.
func tryFlock(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, err
}

// flockTimedWait polls for the exclusive lock until acquired or
// timeout elapses, returning (false, nil) on timeout (EWOULDBLOCK in
// the original).
func flockTimedWait(f *os.File, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		locked, err := tryFlock(f)
		if err != nil {
			return false, err
		}
		if locked {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(lockPollInterval)
	}
}

func unflock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
