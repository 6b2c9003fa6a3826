package tasks

import (
	"strings"
	"sync"
)

// DedupIndex maps source URLs with a running job to that job's task id.
type DedupIndex struct {
	mu     sync.Mutex
	claims map[string]string
}

// NewDedupIndex returns an empty index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{claims: make(map[string]string)}
}

func normalizeLocator(locator string) string {
	return strings.TrimSpace(locator)
}

// TryClaim reserves locator for taskID. When another task already holds it the
// holder's id is returned with true and nothing changes.
func (d *DedupIndex) TryClaim(locator, taskID string) (string, bool) {
	key := normalizeLocator(locator)
	d.mu.Lock()
	defer d.mu.Unlock()
	if holder, ok := d.claims[key]; ok {
		return holder, true
	}
	d.claims[key] = taskID
	return taskID, false
}

// Release frees locator. With a non-empty taskID the claim is only removed if
// that task holds it. Releasing an unclaimed locator is a no-op.
func (d *DedupIndex) Release(locator, taskID string) {
	key := normalizeLocator(locator)
	d.mu.Lock()
	defer d.mu.Unlock()
	holder, ok := d.claims[key]
	if !ok {
		return
	}
	if taskID != "" && holder != taskID {
		return
	}
	delete(d.claims, key)
}

// ReleaseTask frees every locator claimed by taskID.
func (d *DedupIndex) ReleaseTask(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, holder := range d.claims {
		if holder == taskID {
			delete(d.claims, key)
		}
	}
}

// Holder returns the task id holding locator.
func (d *DedupIndex) Holder(locator string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.claims[normalizeLocator(locator)]
	return id, ok
}

// Claims returns a copy of all current claims.
func (d *DedupIndex) Claims() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.claims))
	for k, v := range d.claims {
		out[k] = v
	}
	return out
}

// Len reports the number of claimed locators.
func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}
