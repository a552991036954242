package tracker

import (
	"strings"
	"sync"
)

// Ledger counts, per chat handle, how many reporting cycles the handle
// appeared in since the last Clear. It is shared by every running session.
type Ledger struct {
	mu     sync.Mutex
	counts map[string]int
	order  []string // first-insertion order
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Record increments each distinct handle by exactly one. Handles are
// lower-cased; duplicates within one call count once.
func (l *Ledger) Record(handles []string) {
	if len(handles) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(handles))
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range handles {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if _, ok := l.counts[h]; !ok {
			l.order = append(l.order, h)
		}
		l.counts[h]++
	}
}

// Partition splits the entries into handles seen in more than one cycle and
// handles seen in exactly one. Both slices are in reverse first-insertion
// order (most recently first-seen handle first).
func (l *Ledger) Partition() (multi, single []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.partitionLocked()
}

// Drain returns the partition and clears the ledger in one critical section,
// so no Record can land between the read and the reset.
func (l *Ledger) Drain() (multi, single []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	multi, single = l.partitionLocked()
	l.counts = make(map[string]int)
	l.order = nil
	return multi, single
}

func (l *Ledger) partitionLocked() (multi, single []string) {
	multi = []string{}
	single = []string{}
	for i := len(l.order) - 1; i >= 0; i-- {
		h := l.order[i]
		if l.counts[h] > 1 {
			multi = append(multi, h)
		} else {
			single = append(single, h)
		}
	}
	return multi, single
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.counts = make(map[string]int)
	l.order = nil
	l.mu.Unlock()
}

// count returns the number of cycles handle appeared in (0 if never).
func (l *Ledger) count(handle string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[strings.ToLower(handle)]
}

// Snapshot returns a copy of the current counts.
func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Len returns the number of distinct handles recorded.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counts)
}
