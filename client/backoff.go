package client

import "time"

// backoffDelay computes the reconnect delay for the given attempt number
// (1-based): min(base*attempt, cap). Linear growth with a hard ceiling is
// deliberate; chat reconnects recover quickly or not at all, so aggressive
// exponential growth only delays recovery.
func backoffDelay(base, cap_ time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > cap_ {
		return cap_
	}
	return d
}
