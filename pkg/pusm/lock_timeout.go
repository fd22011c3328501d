package pusm

import "time"

// acquireWithTimeout polls tryLock with exponential backoff (1ms, doubling
// until it reaches 32ms) until it succeeds or timeout elapses. sync.RWMutex has no native
// timed acquire; this is the one place a stdlib primitive is extended by
// hand, in the same poll-and-backoff shape as the storage package's
// flock-based Locker.LockWithTimeout.
func acquireWithTimeout(tryLock func() bool, timeout time.Duration) bool {
	if timeout <= 0 {
		return tryLock()
	}

	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		if tryLock() {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		time.Sleep(backoff)

		if backoff < 25*time.Millisecond {
			backoff *= 2
		}
	}
}
