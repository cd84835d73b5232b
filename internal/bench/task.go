// Package bench is the benchmark harness: task manifests, variant tables,
// the parallel dispatcher, per-instance artifact sets, and scoring.
package bench

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Task is one benchmark task, immutable once loaded from its manifest.
type Task struct {
	ID          string         `json:"id"`
	Question    string         `json:"question,omitempty"`
	Description string         `json:"description,omitempty"`
	GroundTruth string         `json:"ground_truth,omitempty"`
	Password    string         `json:"password,omitempty"`
	Difficulty  string         `json:"difficulty,omitempty"`
	BaseTask    string         `json:"base_task,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Prompt returns the text handed to the system under test.
func (t Task) Prompt() string {
	if t.Question != "" {
		return t.Question
	}
	return t.Description
}

// Base returns the task's base-task name: the explicit base_task field when
// present, otherwise the id prefix before the last variant suffix
// ("reactor-easy" → "reactor").
func (t Task) Base() string {
	if t.BaseTask != "" {
		return t.BaseTask
	}
	if i := strings.LastIndex(t.ID, "-"); i > 0 {
		return t.ID[:i]
	}
	return t.ID
}

// LoadManifest reads a JSON-Lines task manifest, one task object per line.
// Blank lines are skipped.
func LoadManifest(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening task manifest: %w", err)
	}
	defer f.Close()

	var tasks []Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			return nil, fmt.Errorf("task manifest %s line %d: %w", path, lineNum, err)
		}
		if task.ID == "" {
			return nil, fmt.Errorf("task manifest %s line %d: missing id", path, lineNum)
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading task manifest: %w", err)
	}
	return tasks, nil
}
