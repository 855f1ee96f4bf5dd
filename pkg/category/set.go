package category

import (
	"fmt"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/gen"
	"github.com/cyclopcam/logs"
)

// Selection picks the categories of a run.
// At most one of Exclude and Include may be given.
type Selection struct {
	Exclude []int
	Include []int

	// If false, the ids in Exclude/Include are 0-based like the label map on
	// disk, and are shifted by +1. If true they are already 1-based.
	StartsAtOne bool
}

func (s *Selection) Validate() error {
	if len(s.Exclude) != 0 && len(s.Include) != 0 {
		return dataset.ConfigErrorf("Exclude and include class lists are mutually exclusive")
	}
	return nil
}

// Outcome is the way an original category id resolves
type Outcome int

const (
	Unknown  Outcome = iota // Id is not part of the label map
	Kept                    // Id maps to an included category
	Dropped                 // Id is excluded
)

// Set is the category set of one run.
// It is built from the label map, mutated by the remap passes, and then frozen.
//
// Two id spaces exist. Original ids are the 1-based ids of the label map, and
// are what label records refer to. Current ids are the ids of Categories().
// Every original id either resolves to a current id, or is excluded.
type Set struct {
	log        logs.Log
	original   map[int]dataset.Category // original id -> category
	current    map[int]dataset.Category // current id -> category
	resolve    map[int]int              // original id -> current id
	excluded   gen.Set[int]             // original ids
	rearranged bool
	frozen     bool
}

// NewSet applies the selection to raw categories (1-based ids)
func NewSet(log logs.Log, raw []dataset.Category, sel Selection) (*Set, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	s := &Set{
		log:      log,
		original: map[int]dataset.Category{},
		current:  map[int]dataset.Category{},
		resolve:  map[int]int{},
		excluded: gen.NewSet[int](),
	}
	for _, c := range raw {
		if _, ok := s.original[c.ID]; ok {
			return nil, dataset.ConfigErrorf("Duplicate category id %v", c.ID)
		}
		s.original[c.ID] = c
	}

	shift := 1
	if sel.StartsAtOne {
		shift = 0
	}
	listed := gen.NewSet[int]()
	for _, id := range append(gen.CopySlice(sel.Exclude), sel.Include...) {
		id += shift
		if _, ok := s.original[id]; !ok {
			log.Warnf("Class id %v is not in the label map, ignoring it", id)
		}
		listed.Add(id)
	}

	for id, c := range s.original {
		keep := true
		if len(sel.Exclude) != 0 {
			keep = !listed.Has(id)
		} else if len(sel.Include) != 0 {
			keep = listed.Has(id)
		}
		if keep {
			s.current[id] = c
			s.resolve[id] = id
		} else {
			s.excluded.Add(id)
		}
	}
	return s, nil
}

// Categories returns the current categories, ordered by id
func (s *Set) Categories() []dataset.Category {
	r := make([]dataset.Category, 0, len(s.current))
	for _, id := range gen.SortedKeys(s.current) {
		r = append(r, s.current[id])
	}
	return r
}

func (s *Set) Len() int {
	return len(s.current)
}

// Category returns the current category with the given id
func (s *Set) Category(id int) (dataset.Category, bool) {
	c, ok := s.current[id]
	return c, ok
}

// ExcludedIDs returns the excluded original ids
func (s *Set) ExcludedIDs() gen.Set[int] {
	return s.excluded.Clone()
}

func (s *Set) IsIncluded(id int) bool {
	_, ok := s.current[id]
	return ok
}

func (s *Set) IsExcluded(originalID int) bool {
	return s.excluded.Has(originalID)
}

// Resolve maps an original id to its current id
func (s *Set) Resolve(originalID int) (int, Outcome) {
	if id, ok := s.resolve[originalID]; ok {
		return id, Kept
	}
	if s.excluded.Has(originalID) {
		return 0, Dropped
	}
	return 0, Unknown
}

// Table returns the cumulative original id -> current id table.
// Identity entries are omitted, unless the ids were rearranged.
func (s *Set) Table() map[int]int {
	t := map[int]int{}
	for from, to := range s.resolve {
		if from != to || s.rearranged {
			t[from] = to
		}
	}
	return t
}

// Replace is used by remap passes to swap in a new category list.
// mapping takes each surviving current id to its new id. Current ids that
// are not in mapping become excluded, along with every original id that
// resolved to them.
func (s *Set) Replace(cats []dataset.Category, mapping map[int]int) error {
	if s.frozen {
		panic("category set is frozen")
	}
	next := map[int]dataset.Category{}
	for _, c := range cats {
		if other, ok := next[c.ID]; ok {
			return dataset.ConfigErrorf("Category id %v assigned to both '%v' and '%v'", c.ID, other.Name, c.Name)
		}
		next[c.ID] = c
	}
	for _, to := range mapping {
		if _, ok := next[to]; !ok {
			return fmt.Errorf("Remap target %v has no category", to)
		}
	}
	for orig, cur := range s.resolve {
		to, ok := mapping[cur]
		if ok {
			s.resolve[orig] = to
			s.excluded.Delete(orig)
		} else {
			delete(s.resolve, orig)
			s.excluded.Add(orig)
		}
	}
	s.current = next
	return nil
}

// Readmit takes an excluded original id back in, resolving it to a current id
func (s *Set) Readmit(originalID, currentID int) error {
	if s.frozen {
		panic("category set is frozen")
	}
	if _, ok := s.current[currentID]; !ok {
		return fmt.Errorf("Readmit target %v has no category", currentID)
	}
	if _, ok := s.original[originalID]; !ok || !s.excluded.Has(originalID) {
		return nil
	}
	s.excluded.Delete(originalID)
	s.resolve[originalID] = currentID
	return nil
}

// MarkRearranged makes Table() report every surviving id
func (s *Set) MarkRearranged() {
	s.rearranged = true
}

// Freeze validates the set. No changes are allowed afterwards.
func (s *Set) Freeze() error {
	if len(s.current) == 0 {
		return dataset.ConfigErrorf("No categories remain after exclusion and remapping")
	}
	names := map[string]int{}
	for _, c := range s.Categories() {
		if other, ok := names[c.Name]; ok {
			return dataset.ConfigErrorf("Duplicate category name '%v' (ids %v and %v)", c.Name, other, c.ID)
		}
		names[c.Name] = c.ID
	}
	s.frozen = true
	return nil
}

func (s *Set) Frozen() bool {
	return s.frozen
}

// ExcludedList returns the excluded original categories, for reporting
func (s *Set) ExcludedList() []dataset.Category {
	r := []dataset.Category{}
	for _, id := range gen.SortedItems(s.excluded) {
		if c, ok := s.original[id]; ok {
			r = append(r, c)
		}
	}
	return r
}

// IncludedList returns the original categories that survive, for reporting
func (s *Set) IncludedList() []dataset.Category {
	r := []dataset.Category{}
	for _, id := range gen.SortedKeys(s.resolve) {
		r = append(r, s.original[id])
	}
	return r
}
