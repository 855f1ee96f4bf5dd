package remap

import (
	"fmt"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/category"
	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/gen"
	"github.com/cyclopcam/logs"
)

// RuleResult is the outcome of one rule
type RuleResult struct {
	NewID   int
	NewName string
	Matched int // Number of categories folded into NewID
}

// Report summarizes a remap pass
type Report struct {
	Kind     Kind
	Results  []RuleResult
	Mapping  map[int]int // Current id before the pass -> id after the pass
	Warnings []string
}

// Apply runs a rule set against the category set. A nil rule set is a no-op.
func Apply(log logs.Log, set *category.Set, rs *RuleSet) (*Report, error) {
	if rs == nil {
		return &Report{Mapping: identity(set)}, nil
	}
	var report *Report
	var err error
	switch rs.Kind {
	case KindMergeByID:
		report, err = mergeByID(set, rs)
	case KindMergeBySubstring:
		report, err = mergeBySubstring(set, rs)
	default:
		return nil, dataset.ConfigErrorf("Unknown remap rule type '%v'", rs.Kind)
	}
	if err != nil {
		return nil, err
	}
	for _, r := range report.Results {
		if r.Matched == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("No matching classes found for class '%v' with id %v. Ignoring class.", r.NewName, r.NewID))
		} else {
			log.Infof("Mapped %v classes to '%v' with id %v", r.Matched, r.NewName, r.NewID)
		}
	}
	return report, nil
}

func identity(set *category.Set) map[int]int {
	m := map[int]int{}
	for _, c := range set.Categories() {
		m[c.ID] = c.ID
	}
	return m
}

func mergeByID(set *category.Set, rs *RuleSet) (*Report, error) {
	shift := 0
	if rs.IDBase == IDBaseZero {
		shift = 1
	}

	rules := make([]MergeByID, 0, len(rs.Rules))
	names := map[int]string{}
	for _, rule := range rs.Rules {
		r, ok := rule.(MergeByID)
		if !ok {
			return nil, dataset.ConfigErrorf("Rule set %v mixes rule types", rs.Key)
		}
		r.NewID += shift
		old := make([]int, len(r.OldIDs))
		for i, id := range r.OldIDs {
			old[i] = id + shift
		}
		r.OldIDs = old
		if prev, ok := names[r.NewID]; ok && prev != r.NewName {
			return nil, dataset.ConfigErrorf("Rule set %v: id %v is the target of both '%v' and '%v'", rs.Key, r.NewID, prev, r.NewName)
		}
		names[r.NewID] = r.NewName
		rules = append(rules, r)
	}

	// The first rule listing an old id owns it
	owner := map[int]int{}
	for i, r := range rules {
		for _, id := range r.OldIDs {
			if _, ok := owner[id]; !ok {
				owner[id] = i
			}
		}
	}

	// A category already holding a newId is folded into that rule
	target := map[int]int{}
	for i, r := range rules {
		if _, ok := target[r.NewID]; !ok {
			target[r.NewID] = i
		}
	}

	report := &Report{Kind: rs.Kind, Mapping: map[int]int{}}
	matched := make([]int, len(rules))
	emitted := gen.NewSet[int]()
	cats := []dataset.Category{}
	for _, c := range set.Categories() {
		i, ok := owner[c.ID]
		if !ok {
			i, ok = target[c.ID]
		}
		if !ok {
			cats = append(cats, c)
			report.Mapping[c.ID] = c.ID
			continue
		}
		r := rules[i]
		matched[i]++
		report.Mapping[c.ID] = r.NewID
		if !emitted.Has(r.NewID) {
			emitted.Add(r.NewID)
			cats = append(cats, dataset.Category{ID: r.NewID, Name: r.NewName})
		}
	}
	for i, r := range rules {
		report.Results = append(report.Results, RuleResult{NewID: r.NewID, NewName: r.NewName, Matched: matched[i]})
	}
	if err := set.Replace(cats, report.Mapping); err != nil {
		return nil, fmt.Errorf("Rule set %v: %w", rs.Key, err)
	}
	// An excluded class whose id is a newId is taken back in
	for _, r := range rules {
		if emitted.Has(r.NewID) && set.IsExcluded(r.NewID) {
			if err := set.Readmit(r.NewID, r.NewID); err != nil {
				return nil, fmt.Errorf("Rule set %v: %w", rs.Key, err)
			}
		}
	}
	return report, nil
}

func mergeBySubstring(set *category.Set, rs *RuleSet) (*Report, error) {
	rules := make([]MergeBySubstring, 0, len(rs.Rules))
	maxID := 0
	for _, rule := range rs.Rules {
		r, ok := rule.(MergeBySubstring)
		if !ok {
			return nil, dataset.ConfigErrorf("Rule set %v mixes rule types", rs.Key)
		}
		maxID = max(maxID, r.NewID)
		rules = append(rules, r)
	}
	for i := range rules {
		if rules[i].NewID == 0 {
			maxID++
			rules[i].NewID = maxID
		}
	}

	report := &Report{Kind: rs.Kind, Mapping: map[int]int{}}
	matched := make([]int, len(rules))
	for _, c := range set.Categories() {
		for i, r := range rules {
			if !strings.Contains(c.Name, r.Substring) {
				continue
			}
			if r.Exclude != "" && strings.Contains(c.Name, r.Exclude) {
				continue
			}
			matched[i]++
			report.Mapping[c.ID] = r.NewID
			break
		}
	}
	cats := []dataset.Category{}
	for i, r := range rules {
		report.Results = append(report.Results, RuleResult{NewID: r.NewID, NewName: r.NewName, Matched: matched[i]})
		if matched[i] != 0 {
			cats = append(cats, dataset.Category{ID: r.NewID, Name: r.NewName, Supercategory: r.Supercategory()})
		}
	}
	if err := set.Replace(cats, report.Mapping); err != nil {
		return nil, fmt.Errorf("Rule set %v: %w", rs.Key, err)
	}
	return report, nil
}

// Rearrange renumbers the current ids to 1..N, in ascending order.
// The returned mapping is the identity when the ids are already contiguous.
func Rearrange(set *category.Set) (map[int]int, error) {
	mapping := map[int]int{}
	cats := set.Categories()
	for i := range cats {
		mapping[cats[i].ID] = i + 1
		cats[i].ID = i + 1
	}
	if err := set.Replace(cats, mapping); err != nil {
		return nil, err
	}
	set.MarkRearranged()
	return mapping, nil
}
