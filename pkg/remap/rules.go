package remap

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/cyclopcam/dsprep/pkg/gen"
)

// Kind is the strategy of a rule set
type Kind string

const (
	KindMergeByID        Kind = "combine_by_id"
	KindMergeBySubstring Kind = "combine_by_substring"
)

// IDBase states how the ids of a merge-by-id rule set are numbered
type IDBase int

const (
	IDBaseZero IDBase = iota // ids are 0-based, like the label map on disk, and get shifted by +1
	IDBaseOne                // ids are 1-based, like the category set
)

// Rule is either MergeByID or MergeBySubstring
type Rule interface {
	Target() (id int, name string)
}

// MergeByID renames (one old id) or merges (several old ids) categories
// into a single category.
type MergeByID struct {
	NewID   int
	NewName string
	OldIDs  []int
}

func (r MergeByID) Target() (int, string) { return r.NewID, r.NewName }

// MergeBySubstring folds every category whose name contains Substring, and
// does not contain Exclude, into a single category.
type MergeBySubstring struct {
	NewID     int // Zero means "append after the largest id"
	NewName   string
	Substring string
	Exclude   string
}

func (r MergeBySubstring) Target() (int, string) { return r.NewID, r.NewName }

// Supercategory is the substring, without parentheses
func (r MergeBySubstring) Supercategory() string {
	return strings.TrimSpace(strings.NewReplacer("(", "", ")", "").Replace(r.Substring))
}

// RuleSet is one entry of a rules file. All rules in a set share one Kind.
type RuleSet struct {
	Key    string
	Kind   Kind
	IDBase IDBase
	Rules  []Rule
}

type ruleJSON struct {
	NewID     *int   `json:"newId"`
	NewName   string `json:"newName"`
	OldIDs    []int  `json:"oldIds"`
	Substring string `json:"substring"`
	Exclude   string `json:"exclude"`
}

type ruleSetJSON struct {
	Type                string     `json:"type"`
	IDBase              string     `json:"idBase"`
	IDsFromOriginalList *bool      `json:"idsFromOriginalList"`
	NewLabels           []ruleJSON `json:"newLabels"`
}

// LoadRules reads a rules file. The file is a JSON object whose keys name
// the rule sets.
func LoadRules(filename string) (map[string]*RuleSet, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, dataset.ConfigErrorf("Failed to read remap rules %v: %w", filename, err)
	}
	sets, err := ParseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("Remap rules %v: %w", filename, err)
	}
	return sets, nil
}

// ParseRules decodes and validates every rule set
func ParseRules(raw []byte) (map[string]*RuleSet, error) {
	doc := map[string]ruleSetJSON{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, dataset.ConfigErrorf("Invalid remap rules JSON: %w", err)
	}
	sets := map[string]*RuleSet{}
	for _, key := range gen.SortedKeys(doc) {
		rs, err := parseRuleSet(key, doc[key])
		if err != nil {
			return nil, err
		}
		sets[key] = rs
	}
	return sets, nil
}

func parseRuleSet(key string, j ruleSetJSON) (*RuleSet, error) {
	rs := &RuleSet{
		Key:  key,
		Kind: Kind(j.Type),
	}
	switch j.IDBase {
	case "zero":
		rs.IDBase = IDBaseZero
	case "one":
		rs.IDBase = IDBaseOne
	case "":
		if j.IDsFromOriginalList != nil && *j.IDsFromOriginalList {
			rs.IDBase = IDBaseOne
		} else {
			rs.IDBase = IDBaseZero
		}
	default:
		return nil, dataset.ConfigErrorf("Rule set %v: invalid idBase '%v' (expected 'zero' or 'one')", key, j.IDBase)
	}
	if len(j.NewLabels) == 0 {
		return nil, dataset.ConfigErrorf("Rule set %v has no newLabels", key)
	}

	switch rs.Kind {
	case KindMergeByID:
		for i, r := range j.NewLabels {
			if r.NewID == nil {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v: newId is required", key, i)
			}
			if r.NewName == "" {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v: newName is required", key, i)
			}
			if len(r.OldIDs) == 0 {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v (%v): oldIds must not be empty", key, i, r.NewName)
			}
			if r.Substring != "" || r.Exclude != "" {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v (%v): substring rules are not allowed in a %v set", key, i, r.NewName, rs.Kind)
			}
			rs.Rules = append(rs.Rules, MergeByID{NewID: *r.NewID, NewName: r.NewName, OldIDs: r.OldIDs})
		}
	case KindMergeBySubstring:
		ids := gen.NewSet[int]()
		for i, r := range j.NewLabels {
			if r.NewName == "" {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v: newName is required", key, i)
			}
			if r.Substring == "" {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v (%v): substring is required", key, i, r.NewName)
			}
			if len(r.OldIDs) != 0 {
				return nil, dataset.ConfigErrorf("Rule set %v, rule %v (%v): oldIds are not allowed in a %v set", key, i, r.NewName, rs.Kind)
			}
			rule := MergeBySubstring{NewName: r.NewName, Substring: r.Substring, Exclude: r.Exclude}
			if r.NewID != nil {
				if *r.NewID <= 0 {
					return nil, dataset.ConfigErrorf("Rule set %v, rule %v (%v): newId must be positive", key, i, r.NewName)
				}
				if ids.Has(*r.NewID) {
					return nil, dataset.ConfigErrorf("Rule set %v: newId %v is used twice", key, *r.NewID)
				}
				ids.Add(*r.NewID)
				rule.NewID = *r.NewID
			}
			rs.Rules = append(rs.Rules, rule)
		}
	default:
		return nil, dataset.ConfigErrorf("Rule set %v: unknown type '%v'", key, j.Type)
	}
	return rs, nil
}
