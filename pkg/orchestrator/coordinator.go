package orchestrator

import "sync"

// SubmissionCoordinator deduplicates observations by id with a mutex-guarded
// set: two workers never
// both act on the same observation id concurrently.
type SubmissionCoordinator struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewSubmissionCoordinator returns an empty coordinator.
func NewSubmissionCoordinator() *SubmissionCoordinator {
	return &SubmissionCoordinator{seen: make(map[string]bool)}
}

// Claim returns true and records observationID the first time it is seen;
// every subsequent call for the same id returns false.
func (c *SubmissionCoordinator) Claim(observationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[observationID] {
		return false
	}
	c.seen[observationID] = true
	return true
}
