package partition

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/gen"
)

// Split is a named share of the dataset
type Split struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Item is one image and its label record. They never get separated.
type Item struct {
	Name  string // Base name, without extension
	Image string // Path of the image
	Label string // Path of the label record
}

// Assignment maps split names to their items
type Assignment struct {
	Splits []Split
	Seed   uint64 // Seed of the shuffle, below 2^63. Zero if the pool was not shuffled.
	items  map[string][]Item
}

// Items returns the items of a split, in assignment order
func (a *Assignment) Items(split string) []Item {
	return a.items[split]
}

// Names returns the split names, in configured order
func (a *Assignment) Names() []string {
	names := make([]string, len(a.Splits))
	for i, s := range a.Splits {
		names[i] = s.Name
	}
	return names
}

// Len returns the total number of assigned items
func (a *Assignment) Len() int {
	n := 0
	for _, items := range a.items {
		n += len(items)
	}
	return n
}

// WeightPercent returns the weight of a split as a percentage of the total weight
func (a *Assignment) WeightPercent(split string) float64 {
	total := 0.0
	w := 0.0
	for _, s := range a.Splits {
		total += s.Weight
		if s.Name == split {
			w = s.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return w / total * 100
}

// Options control the order of items before they are assigned
type Options struct {
	Shuffle bool
	Seed    uint64 // If zero, a random seed is chosen and recorded in the Assignment
}

func ValidateSplits(splits []Split) error {
	if len(splits) == 0 {
		return dataset.ConfigErrorf("At least one split is required")
	}
	names := gen.NewSet[string]()
	total := 0.0
	for _, s := range splits {
		if s.Name == "" {
			return dataset.ConfigErrorf("Split names must not be empty")
		}
		if names.Has(s.Name) {
			return dataset.ConfigErrorf("Split '%v' is listed twice", s.Name)
		}
		names.Add(s.Name)
		if s.Weight < 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
			return dataset.ConfigErrorf("Split '%v' has invalid weight %v", s.Name, s.Weight)
		}
		total += s.Weight
	}
	if total <= 0 {
		return dataset.ConfigErrorf("Split weights must sum to a positive number")
	}
	return nil
}

// Counts returns the number of items of each split.
// Each split gets floor(n * weight / total), and the remainder goes to the first split.
func Counts(n int, splits []Split) ([]int, error) {
	if err := ValidateSplits(splits); err != nil {
		return nil, err
	}
	total := 0.0
	for _, s := range splits {
		total += s.Weight
	}
	counts := make([]int, len(splits))
	sum := 0
	for i, s := range splits {
		counts[i] = int(math.Floor(float64(n) * s.Weight / total))
		sum += counts[i]
	}
	counts[0] += n - sum
	return counts, nil
}

// Permutation returns the order in which pool indices are consumed
func Permutation(n int, opt Options) ([]int, uint64) {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if !opt.Shuffle {
		return perm, 0
	}
	seed := opt.Seed
	if seed == 0 {
		seed = rand.Uint64()>>1 | 1
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1))
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	return perm, seed
}

// Partition assigns every item of pool to exactly one split.
// Splits consume the (possibly shuffled) pool from its tail, in listed order.
// The pool itself is not modified.
func Partition(pool []Item, splits []Split, opt Options) (*Assignment, error) {
	counts, err := Counts(len(pool), splits)
	if err != nil {
		return nil, err
	}
	perm, seed := Permutation(len(pool), opt)
	a := &Assignment{
		Splits: gen.CopySlice(splits),
		Seed:   seed,
		items:  map[string][]Item{},
	}
	taken := make([]bool, len(pool))
	tail := len(perm)
	for i, s := range splits {
		items := make([]Item, 0, counts[i])
		for j := 0; j < counts[i]; j++ {
			tail--
			idx := perm[tail]
			if taken[idx] {
				panic(fmt.Sprintf("pool item %v assigned twice", idx))
			}
			taken[idx] = true
			items = append(items, pool[idx])
		}
		a.items[s.Name] = items
	}
	if tail != 0 {
		panic(fmt.Sprintf("%v pool items left unassigned", tail))
	}
	return a, nil
}

// FromLists builds an assignment from presplit lists of base names.
// Only listed items form the working pool.
func FromLists(pool []Item, lists []List) (*Assignment, error) {
	byName := map[string]Item{}
	for _, it := range pool {
		byName[it.Name] = it
	}
	a := &Assignment{items: map[string][]Item{}}
	owner := map[string]string{}
	for _, l := range lists {
		if _, ok := a.items[l.Split]; ok {
			return nil, dataset.ConfigErrorf("Split '%v' has more than one file list", l.Split)
		}
		items := make([]Item, 0, len(l.Names))
		for _, name := range l.Names {
			it, ok := byName[name]
			if !ok {
				return nil, dataset.DataMismatchErrorf("File list of split '%v' names '%v', which has no image and label", l.Split, name)
			}
			if other, ok := owner[name]; ok {
				return nil, dataset.DataMismatchErrorf("'%v' is listed in both split '%v' and '%v'", name, other, l.Split)
			}
			owner[name] = l.Split
			items = append(items, it)
		}
		a.items[l.Split] = items
		a.Splits = append(a.Splits, Split{Name: l.Split, Weight: float64(len(items))})
	}
	if err := ValidateSplits(a.Splits); err != nil {
		return nil, err
	}
	return a, nil
}
