package orchestrator

import (
	"fmt"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Summary is the final accounting of a run. Replanned items are
// excluded from the counts; their children are counted instead.
type Summary struct {
	Success        bool    `json:"success"`
	CompletedCount int     `json:"completed_count"`
	TotalCount     int     `json:"total_count"`
	SuccessRate    float64 `json:"success_rate"`
	SummaryText    string  `json:"summary_text"`
}

// summarize builds the summary from the list's terminal states.
func summarize(list *todo.List) *Summary {
	var total, completed, failed, skipped int
	for _, item := range list.Items() {
		if item.Status == todo.StatusReplanned {
			continue
		}
		total++
		switch item.Status {
		case todo.StatusCompleted:
			completed++
		case todo.StatusFailed:
			failed++
		case todo.StatusSkipped:
			skipped++
		}
	}

	s := &Summary{
		CompletedCount: completed,
		TotalCount:     total,
	}
	if total > 0 {
		s.SuccessRate = float64(completed) / float64(total)
	}

	switch {
	case total == 0:
		// Nothing to execute is vacuously successful, not a failure.
		s.Success = true
		s.SummaryText = "No tasks to run."
	case completed == total:
		s.Success = true
		s.SummaryText = fmt.Sprintf("All %d tasks completed successfully.", total)
	case s.SuccessRate > 0.5:
		s.SummaryText = fmt.Sprintf(
			"Partially completed: %d of %d tasks done (%d failed, %d skipped).",
			completed, total, failed, skipped)
	default:
		s.SummaryText = fmt.Sprintf(
			"Run failed: only %d of %d tasks completed (%d failed, %d skipped).",
			completed, total, failed, skipped)
	}
	return s
}
