package engine

import "sync"

// CycleDetector remembers which tasks already ran on which entity state
// within a root flow.
//
// A cycle is a task running twice for the same (task, entity, state hash)
// in one flow. That happens when rules feed each other:
//
//	task.estimate changes → rule r1 sets task.priority
//	→ rule r2 sets task.estimate back → r1 would fire again on the same state
//
// Rules that keep changing the state are not cycles here; the steps quota
// bounds them.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // root id → cycle key → fired
}

// NewCycleDetector creates an empty detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{history: make(map[string]map[string]bool)}
}

func cycleKey(taskID, entityID, stateHash string) string {
	return taskID + ":" + entityID + ":" + stateHash
}

// WouldCycle reports whether the task already ran for this entity state in
// the flow.
func (c *CycleDetector) WouldCycle(rootID, taskID, entityID, stateHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[rootID] == nil {
		return false
	}
	return c.history[rootID][cycleKey(taskID, entityID, stateHash)]
}

// Record marks the task as run for this entity state.
func (c *CycleDetector) Record(rootID, taskID, entityID, stateHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[rootID] == nil {
		c.history[rootID] = make(map[string]bool)
	}
	c.history[rootID][cycleKey(taskID, entityID, stateHash)] = true
}

// CheckAndRecord records the firing and reports whether it was new. It is
// WouldCycle and Record under one lock, for concurrent workers.
func (c *CycleDetector) CheckAndRecord(rootID, taskID, entityID, stateHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cycleKey(taskID, entityID, stateHash)
	if c.history[rootID] == nil {
		c.history[rootID] = make(map[string]bool)
	}
	if c.history[rootID][key] {
		return false
	}
	c.history[rootID][key] = true
	return true
}

// Clear forgets a finished flow.
func (c *CycleDetector) Clear(rootID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, rootID)
}

// HistorySize returns the number of flows with history.
func (c *CycleDetector) HistorySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// FlowHistorySize returns the number of firings recorded for a flow.
func (c *CycleDetector) FlowHistorySize(rootID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history[rootID])
}
