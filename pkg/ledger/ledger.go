// Package ledger counts ground truth boxes per category and split.
package ledger

import "sync"

// Counts is an unsynchronized accumulator, for use by a single reader.
// categoryId -> split -> count
type Counts map[int]map[string]int

func (c Counts) Add(classID int, split string, n int) {
	m := c[classID]
	if m == nil {
		m = map[string]int{}
		c[classID] = m
	}
	m[split] += n
}

// Ledger is the shared box count of a run. It is safe for concurrent use.
// Counts only ever grow.
type Ledger struct {
	mu     sync.Mutex
	counts Counts
}

func New() *Ledger {
	return &Ledger{counts: Counts{}}
}

func (l *Ledger) Increment(classID int, split string) {
	l.mu.Lock()
	l.counts.Add(classID, split, 1)
	l.mu.Unlock()
}

// Merge adds a local accumulator into the ledger
func (l *Ledger) Merge(c Counts) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, splits := range c {
		for split, n := range splits {
			l.counts.Add(id, split, n)
		}
	}
}

func (l *Ledger) Count(classID int, split string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[classID][split]
}

// Total returns the number of boxes of a class across every split
func (l *Ledger) Total(classID int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.counts[classID] {
		n += c
	}
	return n
}

// SplitTotal returns the number of boxes of every class in a split
func (l *Ledger) SplitTotal(split string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, splits := range l.counts {
		n += splits[split]
	}
	return n
}

// Fraction returns the share of a class's boxes that are in split, as a percentage.
// Zero if the class has no boxes.
func (l *Ledger) Fraction(classID int, split string) float64 {
	total := l.Total(classID)
	if total == 0 {
		return 0
	}
	return float64(l.Count(classID, split)) / float64(total) * 100
}

// TargetDelta is the configured weight of split (a percentage) minus the
// actual fraction of the class in that split. Zero if the class has no boxes.
func (l *Ledger) TargetDelta(classID int, split string, weightPercent float64) float64 {
	if l.Total(classID) == 0 {
		return 0
	}
	return weightPercent - l.Fraction(classID, split)
}
