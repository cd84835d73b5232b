// Package audit reconciles expected benchmark runs against the artifacts
// actually on disk. It never mutates anything it reads.
package audit

import (
	"fmt"
	"os"
	"strings"

	"github.com/magneticlabs/surfbench/internal/bench"
)

// Classification is the audit verdict for one (directory, task, dimension)
// instance.
type Classification string

const (
	ClassDirMissing       Classification = "Directory missing"
	ClassTimesMissing     Classification = "times.json missing"
	ClassAnswerMissing    Classification = "answer file missing"
	ClassTokensMissing    Classification = "model_tokens_usage.json missing"
	ClassInterrupted      Classification = "interrupted"
	ClassNotCompleted     Classification = "not completed"
	ClassCompletedTimeout Classification = "completed with timeout"
	ClassCompletedSuccess Classification = "completed successfully"
	ClassCompletedFailure Classification = "completed with failure"
)

// Found reports whether the instance has a usable artifact set. The four
// missing-file classes all mean "not found".
func (c Classification) Found() bool {
	switch c {
	case ClassDirMissing, ClassTimesMissing, ClassAnswerMissing, ClassTokensMissing:
		return false
	}
	return true
}

// Classify inspects one instance's artifacts.
func Classify(a bench.ArtifactSet, task bench.Task) Classification {
	if _, err := os.Stat(a.Dir()); err != nil {
		return ClassDirMissing
	}
	if _, err := os.Stat(a.TimesPath()); err != nil {
		return ClassTimesMissing
	}
	if _, err := os.Stat(a.AnswerPath()); err != nil {
		return ClassAnswerMissing
	}
	if _, err := os.Stat(a.TokensPath()); err != nil {
		return ClassTokensMissing
	}

	times, err := a.ReadTimes()
	if err != nil {
		return ClassTimesMissing
	}
	if times.Interrupted {
		return ClassInterrupted
	}
	if !times.Completed {
		return ClassNotCompleted
	}

	ans, err := a.ReadAnswer()
	if err != nil {
		return ClassAnswerMissing
	}
	if strings.Contains(ans.Answer, bench.TimeoutMarker) {
		return ClassCompletedTimeout
	}
	if task.Password != "" &&
		strings.Contains(strings.ToLower(ans.Answer), strings.ToLower(task.Password)) {
		return ClassCompletedSuccess
	}
	return ClassCompletedFailure
}

// Status is one classified instance.
type Status struct {
	Dir       string
	TaskID    string
	Dimension int
	Class     Classification
}

// Tally aggregates classifications for one run directory or the whole audit.
type Tally struct {
	Dir       string
	Expected  int
	Found     int
	Missing   int
	TimedOut  int
	Succeeded int
	Failed    int
}

// TimeoutRate is timed-out instances over found instances.
func (t Tally) TimeoutRate() float64 {
	if t.Found == 0 {
		return 0
	}
	return float64(t.TimedOut) / float64(t.Found)
}

func (t *Tally) add(c Classification) {
	t.Expected++
	if !c.Found() {
		t.Missing++
		return
	}
	t.Found++
	switch c {
	case ClassInterrupted, ClassCompletedTimeout:
		t.TimedOut++
	case ClassCompletedSuccess:
		t.Succeeded++
	case ClassCompletedFailure, ClassNotCompleted:
		t.Failed++
	}
}

// Report is the full audit result.
type Report struct {
	Statuses []Status
	Dirs     []Tally
	Overall  Tally
}

// Auditor walks expected (directory, task, dimension) triples.
type Auditor struct {
	basePath string
	dirs     []string
	variants map[string][]int
	tasks    []bench.Task
}

// New creates an auditor over the given run directories, expected task list,
// and dimension variant table.
func New(basePath string, dirs []string, tasks []bench.Task, variants map[string][]int) *Auditor {
	return &Auditor{
		basePath: basePath,
		dirs:     dirs,
		variants: variants,
		tasks:    tasks,
	}
}

// Audit classifies every expected instance and aggregates per-directory and
// overall tallies.
func (ad *Auditor) Audit() *Report {
	report := &Report{Overall: Tally{Dir: "overall"}}

	for _, dir := range ad.dirs {
		tally := Tally{Dir: dir}
		for _, task := range ad.tasks {
			for _, dim := range bench.DimensionsFor(ad.variants, task) {
				a := bench.ArtifactSet{
					BasePath:  ad.basePath,
					RunDir:    dir,
					TaskID:    task.ID,
					Dimension: dim,
				}
				class := Classify(a, task)
				report.Statuses = append(report.Statuses, Status{
					Dir:       dir,
					TaskID:    task.ID,
					Dimension: dim,
					Class:     class,
				})
				tally.add(class)
				report.Overall.add(class)
			}
		}
		report.Dirs = append(report.Dirs, tally)
	}
	return report
}

// Print writes the operator-facing audit summary.
func (r *Report) Print() {
	for _, s := range r.Statuses {
		fmt.Printf("  %s / %s / %d: %s\n", s.Dir, s.TaskID, s.Dimension, s.Class)
	}
	fmt.Println()
	for _, t := range r.Dirs {
		printTally(t)
	}
	fmt.Println("────────────────────────────────────────")
	printTally(r.Overall)
}

func printTally(t Tally) {
	fmt.Printf("%s: expected=%d found=%d missing=%d timed_out=%d (%.0f%%) succeeded=%d failed=%d\n",
		t.Dir, t.Expected, t.Found, t.Missing, t.TimedOut, t.TimeoutRate()*100, t.Succeeded, t.Failed)
}
