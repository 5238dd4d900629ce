// Package selection caps how many matched items of a run proceed to
// extraction, ranking by triage confidence.
package selection

import (
	"riskradar/internal/core"
	"riskradar/internal/logger"
)

// Store is the selection gate's slice of the store.
type Store interface {
	MatchedItemsForRun(runID string, threshold float64) ([]core.Item, error)
	AssignSelection(runID string, rankedIDs []int64) error
}

// Gate assigns selection ranks for one run.
type Gate struct {
	store     Store
	threshold float64
	maxItems  int
}

// New creates a selection gate. maxItems bounds how many items enter
// processing per run.
func New(store Store, threshold float64, maxItems int) *Gate {
	return &Gate{store: store, threshold: threshold, maxItems: maxItems}
}

// Result summarizes one gate pass.
type Result struct {
	Matched  int
	Selected int
}

// Run ranks the run's matches by confidence and selects the top N. Ranks
// are assigned in one transaction so a re-run stays contiguous.
func (g *Gate) Run(runID string) (*Result, error) {
	matched, err := g.store.MatchedItemsForRun(runID, g.threshold)
	if err != nil {
		return nil, err
	}

	selected := matched
	if g.maxItems > 0 && len(selected) > g.maxItems {
		selected = selected[:g.maxItems]
	}

	ids := make([]int64, len(selected))
	for i, item := range selected {
		ids[i] = item.ID
	}
	if err := g.store.AssignSelection(runID, ids); err != nil {
		return nil, err
	}

	logger.Info("Selection complete", "run_id", runID,
		"matched", len(matched), "selected", len(selected))
	return &Result{Matched: len(matched), Selected: len(selected)}, nil
}
