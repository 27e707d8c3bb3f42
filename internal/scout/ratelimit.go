package scout

import "time"

// window is the sliding interval both quota tiers are measured over.
const window = time.Hour

// HourlyLimiter enforces global and per-source quotas on outbound forwards
// over a trailing one-hour window. It is not safe for concurrent use; all
// pipeline state is driven from a single goroutine.
type HourlyLimiter struct {
	maxPerHour          int
	maxPerSourcePerHour int

	global    []time.Time
	perSource map[int64][]time.Time

	// now is replaceable for tests
	now func() time.Time
}

// RateStatus is a point-in-time snapshot of limiter state.
type RateStatus struct {
	GlobalLastHour  int `json:"global_messages_last_hour"`
	GlobalLimit     int `json:"global_limit"`
	GlobalRemaining int `json:"global_remaining"`
	SourcesTracked  int `json:"sources_tracked"`
	PerSourceLimit  int `json:"per_source_limit"`
}

// NewHourlyLimiter creates a limiter with the given hourly caps.
func NewHourlyLimiter(maxPerHour, maxPerSourcePerHour int) *HourlyLimiter {
	return &HourlyLimiter{
		maxPerHour:          maxPerHour,
		maxPerSourcePerHour: maxPerSourcePerHour,
		perSource:           make(map[int64][]time.Time),
		now:                 time.Now,
	}
}

// CanSend reports whether a forward from sourceID fits within both quotas.
func (l *HourlyLimiter) CanSend(sourceID int64) bool {
	now := l.now()

	l.global = prune(l.global, now)
	if len(l.global) >= l.maxPerHour {
		return false
	}

	l.perSource[sourceID] = prune(l.perSource[sourceID], now)
	return len(l.perSource[sourceID]) < l.maxPerSourcePerHour
}

// Record counts a successful forward from sourceID against both quotas.
// Call only after the platform send succeeded.
func (l *HourlyLimiter) Record(sourceID int64) {
	now := l.now()
	l.global = append(l.global, now)
	l.perSource[sourceID] = append(l.perSource[sourceID], now)
}

// GlobalCount returns the number of forwards in the trailing window.
func (l *HourlyLimiter) GlobalCount() int {
	l.global = prune(l.global, l.now())
	return len(l.global)
}

// Status prunes all windows and returns current counts and budgets.
func (l *HourlyLimiter) Status() RateStatus {
	now := l.now()

	l.global = prune(l.global, now)
	for id, w := range l.perSource {
		l.perSource[id] = prune(w, now)
	}

	remaining := l.maxPerHour - len(l.global)
	if remaining < 0 {
		remaining = 0
	}

	return RateStatus{
		GlobalLastHour:  len(l.global),
		GlobalLimit:     l.maxPerHour,
		GlobalRemaining: remaining,
		SourcesTracked:  len(l.perSource),
		PerSourceLimit:  l.maxPerSourcePerHour,
	}
}

// prune drops timestamps older than the window. Windows are appended in
// time order, so trimming the front suffices.
func prune(w []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w) && w[i].Before(cutoff) {
		i++
	}
	return w[i:]
}
