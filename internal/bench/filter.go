package bench

import (
	"fmt"
	"sort"
	"strings"
)

var knownDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// Filter restricts which tasks a dispatch or eval pass covers. All fields are
// conjunctive; an empty field matches everything.
type Filter struct {
	TaskIDs      []string
	BaseTasks    []string
	Difficulties []string

	// Subsample keeps only the first N tasks after sorting by id; zero keeps
	// all.
	Subsample int
}

// SplitList parses a comma-separated CLI filter value into trimmed, non-empty
// entries.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate rejects difficulty labels outside the known set.
func (f Filter) Validate() error {
	for _, d := range f.Difficulties {
		if !knownDifficulties[strings.ToLower(d)] {
			return fmt.Errorf("unknown difficulty %q (want easy, medium, or hard)", d)
		}
	}
	return nil
}

// Apply returns the tasks passing every configured restriction, in sorted-id
// order.
func (f Filter) Apply(tasks []Task) []Task {
	var matched []Task
	for _, t := range tasks {
		if len(f.TaskIDs) > 0 && !containsFold(f.TaskIDs, t.ID) {
			continue
		}
		if len(f.BaseTasks) > 0 && !containsFold(f.BaseTasks, t.Base()) {
			continue
		}
		if len(f.Difficulties) > 0 && !containsFold(f.Difficulties, t.Difficulty) {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if f.Subsample > 0 && f.Subsample < len(matched) {
		matched = matched[:f.Subsample]
	}
	return matched
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
