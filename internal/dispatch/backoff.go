package dispatch

import "time"

// backoffDelay returns how long a job stays unavailable after a transient
// failure: base doubled for every prior attempt, capped at maxDelay. The
// attempt argument is the number of attempts already made, so the first
// retry waits exactly base.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	// Shifting past 62 bits overflows a Duration long before any sane cap.
	if attempt-1 >= 62 {
		return maxDelay
	}
	d := base << (attempt - 1)
	if maxDelay > 0 && (d <= 0 || d > maxDelay) {
		return maxDelay
	}
	return d
}
