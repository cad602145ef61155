package admission

import "time"

// statsWindow is how many recent outcomes the rolling stats keep.
const statsWindow = 50

// rollingStats tracks recent dispatch outcomes. Callers must hold the
// admitter mutex.
type rollingStats struct {
	outcomes []outcome
	next     int
	filled   bool
}

type outcome struct {
	failed  bool
	latency time.Duration
}

func (s *rollingStats) record(failed bool, latency time.Duration) {
	if s.outcomes == nil {
		s.outcomes = make([]outcome, statsWindow)
	}
	s.outcomes[s.next] = outcome{failed: failed, latency: latency}
	s.next = (s.next + 1) % statsWindow
	if s.next == 0 {
		s.filled = true
	}
}

func (s *rollingStats) size() int {
	if s.filled {
		return statsWindow
	}
	return s.next
}

// errorRate returns the fraction of recent dispatches that failed.
func (s *rollingStats) errorRate() float64 {
	n := s.size()
	if n == 0 {
		return 0
	}
	failed := 0
	for i := 0; i < n; i++ {
		if s.outcomes[i].failed {
			failed++
		}
	}
	return float64(failed) / float64(n)
}

// avgLatency returns the mean recent dispatch latency.
func (s *rollingStats) avgLatency() time.Duration {
	n := s.size()
	if n == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += s.outcomes[i].latency
	}
	return total / time.Duration(n)
}
