package reconnect

import "time"

// Schedule defines the backoff durations for successive attempts to reach
// the generation backend.
var Schedule = []time.Duration{
	time.Second, 2 * time.Second, 2 * time.Second,
	5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second,
}

// Max is used once the schedule is exhausted.
const Max = 30 * time.Second

// Delay returns the backoff duration for the given zero-based attempt.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		return Schedule[0]
	}
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return Max
}
