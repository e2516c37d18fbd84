package usagepublisher

import "time"

// Timing is the latency breakdown of one invocation. The durations are
// never negative.
type Timing struct {
	ResponseTime time.Duration
	ServiceTime  time.Duration
	BackendTime  time.Duration
	CacheHit     bool

	// Complete is true when the timestamps matched either the backend or
	// the cache pattern.
	Complete bool
}

// ComputeTiming derives the timing from epoch millisecond timestamps,
// where 0 means that the timestamp was not recorded. The rules, in
// order:
//
//   - without request start, everything is zero
//   - with backend start, backend end and response end, the backend time
//     is the backend round trip, and the service time is the rest of the
//     response time
//   - with response end but without backend start, the response is
//     assumed to come from the cache, and the whole response time is
//     service time
//   - any other combination, e.g. a backend call that never finished,
//     yields zero durations and no cache hit, and is marked incomplete
//
// Differences that would be negative because of clock adjustments are
// clamped to zero.
func ComputeTiming(requestStart, backendStart, backendEnd, responseEnd int64) Timing {
	switch {
	case requestStart == 0:
		return Timing{}
	case backendStart != 0 && backendEnd != 0 && responseEnd != 0:
		response := millis(responseEnd - requestStart)
		backend := millis(backendEnd - backendStart)
		return Timing{
			ResponseTime: response,
			BackendTime:  backend,
			ServiceTime:  nonNegative(response - backend),
			Complete:     true,
		}
	case responseEnd != 0 && backendStart == 0:
		response := millis(responseEnd - requestStart)
		return Timing{
			ResponseTime: response,
			ServiceTime:  response,
			CacheHit:     true,
			Complete:     true,
		}
	default:
		return Timing{}
	}
}

func millis(ms int64) time.Duration {
	return nonNegative(time.Duration(ms) * time.Millisecond)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}

	return d
}
