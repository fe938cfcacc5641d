// Package usage records token counts for one completion stream and derives
// an estimated cost.
//
// Information Hiding:
// - Write-once guard around the snapshot
// - Cost arithmetic
package usage

import "sync"

// Snapshot is the usage of one finished stream.
type Snapshot struct {
	PromptTokens     uint32  `json:"prompt_tokens"`
	CompletionTokens uint32  `json:"completion_tokens"`
	TotalTokens      uint32  `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// Tracker holds the usage of a single stream. Only the first Complete call
// is recorded.
type Tracker struct {
	costPer1k float64

	once     sync.Once
	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewTracker creates a tracker that prices tokens at costPer1k per thousand.
func NewTracker(costPer1k float64) *Tracker {
	return &Tracker{costPer1k: costPer1k}
}

// Complete records the final counters. Later calls are ignored.
func (t *Tracker) Complete(promptTokens, completionTokens uint32) {
	t.once.Do(func() {
		total := promptTokens + completionTokens
		s := &Snapshot{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      total,
			EstimatedCost:    Cost(total, t.costPer1k),
		}
		t.mu.Lock()
		t.snapshot = s
		t.mu.Unlock()
	})
}

// Snapshot returns the recorded usage. The second result is false until
// Complete has been called, so an unknown cost is never reported as zero.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snapshot == nil {
		return Snapshot{}, false
	}
	return *t.snapshot, true
}

// Cost is totalTokens/1000 * costPer1k.
func Cost(totalTokens uint32, costPer1k float64) float64 {
	return float64(totalTokens) / 1000 * costPer1k
}
