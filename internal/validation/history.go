package validation

import (
	"sync"
	"time"
)

// historyWindow bounds how far back repetition checks look.
const historyWindow = 10 * time.Minute

// maxRecordsPerTool bounds memory per (server, tool) key.
const maxRecordsPerTool = 50

// History tracks recent tool-call outcomes per (server, tool) so the
// history validator can flag repetition after failure and chronically
// failing tools. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	records map[string][]record
	now     func() time.Time
}

type record struct {
	at      time.Time
	success bool
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		records: make(map[string][]record),
		now:     time.Now,
	}
}

// Record stores one call outcome.
func (h *History) Record(server, tool string, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := server + "." + tool
	recs := append(h.records[key], record{at: h.now(), success: success})
	if len(recs) > maxRecordsPerTool {
		recs = recs[len(recs)-maxRecordsPerTool:]
	}
	h.records[key] = recs
}

// RecentFailures counts failed calls within the history window.
func (h *History) RecentFailures(server, tool string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := h.now().Add(-historyWindow)
	count := 0
	for _, r := range h.records[server+"."+tool] {
		if !r.success && r.at.After(cutoff) {
			count++
		}
	}
	return count
}

// SuccessRate returns the rolling success rate for a tool and whether
// any calls were recorded at all.
func (h *History) SuccessRate(server, tool string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	recs := h.records[server+"."+tool]
	if len(recs) == 0 {
		return 0, false
	}
	ok := 0
	for _, r := range recs {
		if r.success {
			ok++
		}
	}
	return float64(ok) / float64(len(recs)), true
}
