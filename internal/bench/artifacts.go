package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magneticlabs/surfbench/internal/team"
)

// TimeoutMarker appears in an answer that was cut short by the per-task
// timeout.
const TimeoutMarker = "TIMEOUT"

// Times is the per-instance timing record.
type Times struct {
	Completed   bool    `json:"completed"`
	Interrupted bool    `json:"interrupted"`
	Duration    float64 `json:"duration"`
}

// Answer is the per-instance final answer record.
type Answer struct {
	Answer string `json:"answer"`
}

// Score is the per-instance score record.
type Score struct {
	Score int `json:"score"`
}

// ArtifactSet addresses the fixed group of files written for one executed
// (task, dimension) instance under <base>/<dir>/<task>/<dimension>/.
type ArtifactSet struct {
	BasePath  string
	RunDir    string
	TaskID    string
	Dimension int
}

// Dir returns the instance directory.
func (a ArtifactSet) Dir() string {
	return filepath.Join(a.BasePath, a.RunDir, a.TaskID, fmt.Sprintf("%d", a.Dimension))
}

// TimesPath returns the times.json path.
func (a ArtifactSet) TimesPath() string {
	return filepath.Join(a.Dir(), "times.json")
}

// AnswerPath returns the <task>_<dimension>_answer.json path.
func (a ArtifactSet) AnswerPath() string {
	return filepath.Join(a.Dir(), fmt.Sprintf("%s_%d_answer.json", a.TaskID, a.Dimension))
}

// TokensPath returns the model_tokens_usage.json path.
func (a ArtifactSet) TokensPath() string {
	return filepath.Join(a.Dir(), "model_tokens_usage.json")
}

// ScorePath returns the score.json path.
func (a ArtifactSet) ScorePath() string {
	return filepath.Join(a.Dir(), "score.json")
}

// Valid reports whether the instance has a usable artifact set: times.json,
// the answer file, and model_tokens_usage.json all present. score.json is not
// required for validity.
func (a ArtifactSet) Valid() bool {
	for _, p := range []string{a.TimesPath(), a.AnswerPath(), a.TokensPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// HasScore reports whether score.json exists.
func (a ArtifactSet) HasScore() bool {
	_, err := os.Stat(a.ScorePath())
	return err == nil
}

// TimedOut reports whether a valid artifact set records a timed-out run:
// either times.json says interrupted, or the stored answer carries the
// timeout marker.
func (a ArtifactSet) TimedOut() bool {
	if times, err := a.ReadTimes(); err == nil && times.Interrupted {
		return true
	}
	if ans, err := a.ReadAnswer(); err == nil && strings.Contains(ans.Answer, TimeoutMarker) {
		return true
	}
	return false
}

// ReadTimes loads times.json.
func (a ArtifactSet) ReadTimes() (Times, error) {
	var t Times
	return t, readJSON(a.TimesPath(), &t)
}

// WriteTimes stores times.json.
func (a ArtifactSet) WriteTimes(t Times) error {
	return a.writeJSON(a.TimesPath(), t)
}

// ReadAnswer loads the answer file.
func (a ArtifactSet) ReadAnswer() (Answer, error) {
	var ans Answer
	return ans, readJSON(a.AnswerPath(), &ans)
}

// WriteAnswer stores the answer file.
func (a ArtifactSet) WriteAnswer(ans Answer) error {
	return a.writeJSON(a.AnswerPath(), ans)
}

// ReadTokens loads model_tokens_usage.json.
func (a ArtifactSet) ReadTokens() (map[string]team.TokenUsage, error) {
	var usage map[string]team.TokenUsage
	return usage, readJSON(a.TokensPath(), &usage)
}

// WriteTokens stores model_tokens_usage.json. A nil map is written as an
// empty object so the file always exists for a recorded instance.
func (a ArtifactSet) WriteTokens(usage map[string]team.TokenUsage) error {
	if usage == nil {
		usage = map[string]team.TokenUsage{}
	}
	return a.writeJSON(a.TokensPath(), usage)
}

// ReadScore loads score.json.
func (a ArtifactSet) ReadScore() (Score, error) {
	var s Score
	return s, readJSON(a.ScorePath(), &s)
}

// WriteScore stores score.json.
func (a ArtifactSet) WriteScore(s Score) error {
	return a.writeJSON(a.ScorePath(), s)
}

// RemoveScore deletes score.json if present. A re-executed instance must not
// keep the score of the attempt it replaced.
func (a ArtifactSet) RemoveScore() error {
	if err := os.Remove(a.ScorePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", filepath.Base(a.ScorePath()), err)
	}
	return nil
}

func (a ArtifactSet) writeJSON(path string, v any) error {
	if err := os.MkdirAll(a.Dir(), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
