package bench

import (
	"fmt"
	"strings"
)

// ScoreAnswer grades a stored answer against a task. Password tasks pass when
// the expected password appears case-insensitively in the answer; other tasks
// use exact comparison against ground truth. An answer carrying the timeout
// marker never passes.
func ScoreAnswer(task Task, answer string) int {
	if strings.Contains(answer, TimeoutMarker) {
		return 0
	}
	if task.Password != "" {
		if strings.Contains(strings.ToLower(answer), strings.ToLower(task.Password)) {
			return 1
		}
		return 0
	}
	if strings.TrimSpace(answer) == strings.TrimSpace(task.GroundTruth) {
		return 1
	}
	return 0
}

// EvalSummary aggregates one scoring pass.
type EvalSummary struct {
	Scored  int
	Passed  int
	Skipped int
	Invalid int
}

// Evaluate re-derives score.json for every instance with a valid artifact
// set. Existing scores are kept unless redoEval is set. Instances with
// incomplete artifacts are counted and skipped, never treated as errors.
func (d *Dispatcher) Evaluate(tasks []Task) (*EvalSummary, error) {
	summary := &EvalSummary{}

	for _, task := range tasks {
		for _, dim := range DimensionsFor(d.variants, task) {
			a := d.artifactSet(task.ID, dim)
			if !a.Valid() {
				summary.Invalid++
				continue
			}
			if a.HasScore() && !d.redoEval {
				summary.Skipped++
				continue
			}

			ans, err := a.ReadAnswer()
			if err != nil {
				fmt.Printf("[WARN] %s/%d: unreadable answer, skipping: %v\n", task.ID, dim, err)
				summary.Invalid++
				continue
			}

			score := ScoreAnswer(task, ans.Answer)
			if err := a.WriteScore(Score{Score: score}); err != nil {
				return nil, fmt.Errorf("writing score for %s/%d: %w", task.ID, dim, err)
			}
			summary.Scored++
			if score == 1 {
				summary.Passed++
			}
		}
	}
	return summary, nil
}
