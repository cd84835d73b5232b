package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magneticlabs/surfbench/internal/team"
)

// stubSystem answers every task with a fixed string, optionally after a delay
// or with an error.
type stubSystem struct {
	answer string
	delay  time.Duration
	err    error

	calls *atomic.Int64
}

func (s *stubSystem) Run(ctx context.Context, task string) (*Result, error) {
	if s.calls != nil {
		s.calls.Add(1)
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Result{
		Answer: s.answer,
		Tokens: map[string]team.TokenUsage{"web_surfer": {PromptTokens: 10, CompletionTokens: 5}},
	}, nil
}

func stubFactory(s *stubSystem) SystemFactory {
	return func() (System, error) { return s, nil }
}

func singleDim(taskIDs ...string) map[string][]int {
	table := map[string][]int{}
	for _, id := range taskIDs {
		table[Task{ID: id}.Base()] = []int{0}
	}
	return table
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	content := `{"id":"reactor-easy","description":"stabilize the reactor","password":"FLAG-991","difficulty":"easy"}

{"id":"vault-hard","question":"open the vault","ground_truth":"42","difficulty":"hard"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tasks, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "reactor-easy", tasks[0].ID)
	assert.Equal(t, "stabilize the reactor", tasks[0].Prompt())
	assert.Equal(t, "reactor", tasks[0].Base())
	assert.Equal(t, "open the vault", tasks[1].Prompt())
}

func TestLoadManifestRejectsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))
	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func TestFilterApply(t *testing.T) {
	tasks := []Task{
		{ID: "reactor-easy", Difficulty: "easy"},
		{ID: "reactor-hard", Difficulty: "hard"},
		{ID: "vault-medium", Difficulty: "medium"},
	}

	t.Run("by task id", func(t *testing.T) {
		got := Filter{TaskIDs: SplitList("reactor-hard, vault-medium")}.Apply(tasks)
		require.Len(t, got, 2)
		assert.Equal(t, "reactor-hard", got[0].ID)
	})

	t.Run("by base task", func(t *testing.T) {
		got := Filter{BaseTasks: []string{"reactor"}}.Apply(tasks)
		require.Len(t, got, 2)
	})

	t.Run("by difficulty", func(t *testing.T) {
		got := Filter{Difficulties: []string{"easy", "medium"}}.Apply(tasks)
		require.Len(t, got, 2)
		assert.Equal(t, "reactor-easy", got[0].ID)
		assert.Equal(t, "vault-medium", got[1].ID)
	})

	t.Run("subsample keeps first N after sort", func(t *testing.T) {
		got := Filter{Subsample: 1}.Apply(tasks)
		require.Len(t, got, 1)
		assert.Equal(t, "reactor-easy", got[0].ID)
	})
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Difficulties: []string{"easy", "HARD"}}.Validate())
	assert.Error(t, Filter{Difficulties: []string{"brutal"}}.Validate())
}

func TestScoreAnswer(t *testing.T) {
	tests := []struct {
		name   string
		task   Task
		answer string
		want   int
	}{
		{"password case-insensitive match", Task{ID: "a", Password: "PW123"}, "the secret is pw123", 1},
		{"password missing", Task{ID: "a", Password: "PW123"}, "no idea", 0},
		{"timeout never passes", Task{ID: "a", Password: "PW123"}, "pw123 but TIMEOUT after 15 minutes", 0},
		{"exact ground truth", Task{ID: "b", GroundTruth: "42"}, " 42 ", 1},
		{"wrong ground truth", Task{ID: "b", GroundTruth: "42"}, "41", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreAnswer(tt.task, tt.answer))
		})
	}
}

func TestArtifactSetValidity(t *testing.T) {
	a := ArtifactSet{BasePath: t.TempDir(), RunDir: "0", TaskID: "reactor-easy", Dimension: 2}
	assert.False(t, a.Valid())

	require.NoError(t, a.WriteTimes(Times{Completed: true}))
	require.NoError(t, a.WriteAnswer(Answer{Answer: "FLAG-991"}))
	assert.False(t, a.Valid(), "tokens file still missing")

	require.NoError(t, a.WriteTokens(nil))
	assert.True(t, a.Valid())

	assert.Equal(t, filepath.Join(a.Dir(), "reactor-easy_2_answer.json"), a.AnswerPath())
}

func TestArtifactSetTimedOut(t *testing.T) {
	a := ArtifactSet{BasePath: t.TempDir(), RunDir: "0", TaskID: "t", Dimension: 0}
	require.NoError(t, a.WriteTimes(Times{Completed: true, Interrupted: false}))
	require.NoError(t, a.WriteAnswer(Answer{Answer: "TIMEOUT after 15 minutes"}))
	assert.True(t, a.TimedOut(), "timeout marker in answer")

	require.NoError(t, a.WriteAnswer(Answer{Answer: "fine"}))
	assert.False(t, a.TimedOut())

	require.NoError(t, a.WriteTimes(Times{Interrupted: true}))
	assert.True(t, a.TimedOut(), "interrupted in times.json")
}

func TestDispatcherWritesArtifacts(t *testing.T) {
	base := t.TempDir()
	sys := &stubSystem{answer: "FLAG-991", calls: &atomic.Int64{}}
	d := NewDispatcher(stubFactory(sys), base, "0",
		WithVariants(map[string][]int{"reactor": {2}}), WithParallel(2))

	tasks := []Task{{ID: "reactor-easy", Password: "FLAG-991"}}
	summary, err := d.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 0, summary.Skipped)

	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: "reactor-easy", Dimension: 2}
	require.True(t, a.Valid())

	times, err := a.ReadTimes()
	require.NoError(t, err)
	assert.True(t, times.Completed)
	assert.False(t, times.Interrupted)

	ans, err := a.ReadAnswer()
	require.NoError(t, err)
	assert.Equal(t, "FLAG-991", ans.Answer)

	tokens, err := a.ReadTokens()
	require.NoError(t, err)
	assert.Equal(t, 10, tokens["web_surfer"].PromptTokens)
}

func TestDispatcherIdempotent(t *testing.T) {
	base := t.TempDir()
	sys := &stubSystem{answer: "ok", calls: &atomic.Int64{}}
	d := NewDispatcher(stubFactory(sys), base, "0", WithVariants(singleDim("task-a")))

	tasks := []Task{{ID: "task-a"}}
	_, err := d.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Equal(t, int64(1), sys.calls.Load())

	// A second pass over complete, non-timed-out artifacts does no work.
	summary, err := d.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Executed)
	assert.Equal(t, int64(1), sys.calls.Load())
}

func TestDispatcherRedoEvalForcesRerun(t *testing.T) {
	base := t.TempDir()
	sys := &stubSystem{answer: "ok", calls: &atomic.Int64{}}

	d := NewDispatcher(stubFactory(sys), base, "0", WithVariants(singleDim("task-a")))
	_, err := d.Run(context.Background(), []Task{{ID: "task-a"}})
	require.NoError(t, err)

	redo := NewDispatcher(stubFactory(sys), base, "0",
		WithVariants(singleDim("task-a")), WithRedoEval(true))
	summary, err := redo.Run(context.Background(), []Task{{ID: "task-a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, int64(2), sys.calls.Load())
}

func TestDispatcherRerunTimedout(t *testing.T) {
	base := t.TempDir()
	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: "task-a", Dimension: 0}
	require.NoError(t, a.WriteTimes(Times{Completed: false, Interrupted: true, Duration: 900}))
	require.NoError(t, a.WriteAnswer(Answer{Answer: "TIMEOUT after 15 minutes"}))
	require.NoError(t, a.WriteTokens(nil))

	sys := &stubSystem{answer: "recovered", calls: &atomic.Int64{}}

	// Without rerun_timedout the valid-but-interrupted set is skipped.
	d := NewDispatcher(stubFactory(sys), base, "0", WithVariants(singleDim("task-a")))
	summary, err := d.Run(context.Background(), []Task{{ID: "task-a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	// With it, the instance reruns and its artifacts are overwritten.
	rerun := NewDispatcher(stubFactory(sys), base, "0",
		WithVariants(singleDim("task-a")), WithRerunTimedout(true))
	summary, err = rerun.Run(context.Background(), []Task{{ID: "task-a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)

	times, err := a.ReadTimes()
	require.NoError(t, err)
	assert.True(t, times.Completed)
	assert.False(t, times.Interrupted)

	ans, err := a.ReadAnswer()
	require.NoError(t, err)
	assert.Equal(t, "recovered", ans.Answer)
}

func TestDispatcherRerunClearsStaleScore(t *testing.T) {
	base := t.TempDir()
	task := Task{ID: "task-a", Password: "FLAG-991"}

	// A timed-out attempt that was already scored 0.
	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: task.ID, Dimension: 0}
	require.NoError(t, a.WriteTimes(Times{Completed: false, Interrupted: true}))
	require.NoError(t, a.WriteAnswer(Answer{Answer: "TIMEOUT after 15 minutes"}))
	require.NoError(t, a.WriteTokens(nil))
	require.NoError(t, a.WriteScore(Score{Score: 0}))

	sys := &stubSystem{answer: "FLAG-991"}
	rerun := NewDispatcher(stubFactory(sys), base, "0",
		WithVariants(singleDim("task-a")), WithRerunTimedout(true))
	summary, err := rerun.Run(context.Background(), []Task{task})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Executed)
	assert.False(t, a.HasScore(), "stale score must not survive a rerun")

	// A plain eval pass now scores the fresh answer.
	evalSummary, err := rerun.Evaluate([]Task{task})
	require.NoError(t, err)
	assert.Equal(t, 1, evalSummary.Scored)

	score, err := a.ReadScore()
	require.NoError(t, err)
	assert.Equal(t, 1, score.Score)
}

func TestDispatcherLateSuccessNotTimeout(t *testing.T) {
	base := t.TempDir()
	// Returns a good answer even though the per-task deadline has expired.
	sys := &stubSystem{answer: "made it"}

	d := NewDispatcher(stubFactory(sys), base, "0", WithVariants(singleDim("task-a")))
	d.timeoutMinutes = 0

	summary, err := d.Run(context.Background(), []Task{{ID: "task-a"}})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TimedOut)

	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: "task-a", Dimension: 0}
	times, err := a.ReadTimes()
	require.NoError(t, err)
	assert.True(t, times.Completed)

	ans, err := a.ReadAnswer()
	require.NoError(t, err)
	assert.Equal(t, "made it", ans.Answer)
}

func TestDispatcherTimeoutRecordedNotRaised(t *testing.T) {
	base := t.TempDir()
	sys := &stubSystem{answer: "never", delay: 10 * time.Second}

	d := NewDispatcher(stubFactory(sys), base, "0", WithVariants(singleDim("task-a")))
	// Zero minutes gives an already-expired per-task deadline.
	d.timeoutMinutes = 0

	summary, err := d.Run(context.Background(), []Task{{ID: "task-a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TimedOut)

	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: "task-a", Dimension: 0}
	times, err := a.ReadTimes()
	require.NoError(t, err)
	assert.True(t, times.Interrupted)

	ans, err := a.ReadAnswer()
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, TimeoutMarker)
}

func TestDispatcherSingleFailureDoesNotAbortBatch(t *testing.T) {
	base := t.TempDir()
	var mu sync.Mutex
	perTask := map[string]*stubSystem{
		"bad":  {err: errors.New("model exploded")},
		"good": {answer: "fine"},
	}
	next := make(chan string, 2)
	next <- "bad"
	next <- "good"

	factory := func() (System, error) {
		mu.Lock()
		defer mu.Unlock()
		return perTask[<-next], nil
	}

	d := NewDispatcher(factory, base, "0",
		WithVariants(singleDim("bad", "good")), WithParallel(1))
	summary, err := d.Run(context.Background(), []Task{{ID: "bad"}, {ID: "good"}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Executed)
	assert.Equal(t, 1, summary.Failed)

	// The failed instance recorded its failure instead of raising.
	badSet := ArtifactSet{BasePath: base, RunDir: "0", TaskID: "bad", Dimension: 0}
	require.True(t, badSet.Valid())
	ans, err := badSet.ReadAnswer()
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "model exploded")
}

func TestEvaluateWritesScores(t *testing.T) {
	base := t.TempDir()
	task := Task{ID: "reactor-easy", Password: "FLAG-991"}

	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: task.ID, Dimension: 2}
	require.NoError(t, a.WriteTimes(Times{Completed: true}))
	require.NoError(t, a.WriteAnswer(Answer{Answer: "FLAG-991"}))
	require.NoError(t, a.WriteTokens(nil))

	d := NewDispatcher(nil, base, "0", WithVariants(map[string][]int{"reactor": {2}}))
	summary, err := d.Evaluate([]Task{task})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scored)
	assert.Equal(t, 1, summary.Passed)

	score, err := a.ReadScore()
	require.NoError(t, err)
	assert.Equal(t, 1, score.Score)
}

func TestEvaluateSkipsExistingScoreUnlessRedo(t *testing.T) {
	base := t.TempDir()
	task := Task{ID: "task-a", GroundTruth: "42"}

	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: task.ID, Dimension: 0}
	require.NoError(t, a.WriteTimes(Times{Completed: true}))
	require.NoError(t, a.WriteAnswer(Answer{Answer: "42"}))
	require.NoError(t, a.WriteTokens(nil))
	require.NoError(t, a.WriteScore(Score{Score: 0}))

	d := NewDispatcher(nil, base, "0", WithVariants(singleDim("task-a")))
	summary, err := d.Evaluate([]Task{task})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	score, err := a.ReadScore()
	require.NoError(t, err)
	assert.Equal(t, 0, score.Score, "existing score untouched without redo_eval")

	redo := NewDispatcher(nil, base, "0", WithVariants(singleDim("task-a")), WithRedoEval(true))
	summary, err = redo.Evaluate([]Task{task})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scored)

	score, err = a.ReadScore()
	require.NoError(t, err)
	assert.Equal(t, 1, score.Score)
}

func TestEvaluateSkipsInvalidSets(t *testing.T) {
	base := t.TempDir()
	task := Task{ID: "task-a", GroundTruth: "42"}

	// Answer present but times and tokens missing: not a valid set.
	a := ArtifactSet{BasePath: base, RunDir: "0", TaskID: task.ID, Dimension: 0}
	require.NoError(t, a.WriteAnswer(Answer{Answer: "42"}))

	d := NewDispatcher(nil, base, "0", WithVariants(singleDim("task-a")))
	summary, err := d.Evaluate([]Task{task})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Invalid)
	assert.False(t, a.HasScore())
}

func TestEngineFactoryRunsMockEngine(t *testing.T) {
	cfg, err := team.ParseConfig(map[string]any{"engine": "mock"})
	require.NoError(t, err)

	sys, err := EngineFactory(cfg)()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := sys.Run(ctx, "probe the site")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Answer)
	assert.NotEmpty(t, res.Tokens)
}

func TestEngineSystemAnswersInputRequest(t *testing.T) {
	engine := team.NewMockEngine(&team.Config{EngineType: "mock"})
	engine.AskInput = true
	engine.FinalAnswer = "done"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sys := &engineSystem{engine: engine}
	res, err := sys.Run(ctx, "needs approval")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
}

func TestDimensionsFor(t *testing.T) {
	table := map[string][]int{"reactor": {0, 1, 2}}
	assert.Equal(t, []int{0, 1, 2}, DimensionsFor(table, Task{ID: "reactor-easy"}))
	assert.Equal(t, []int{0}, DimensionsFor(table, Task{ID: "unlisted-task"}))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("  "))
	assert.Equal(t, []string{"a", "b"}, SplitList("a, b,"))
}
