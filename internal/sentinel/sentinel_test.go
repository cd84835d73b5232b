package sentinel

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registrySrc = `
import { REACTOR_PW_ID, VAULT_PW_ID, REACTOR_TITLE } from "./constants";

export const ROUTES = [
  {
    id: "reactor-easy",
    path: "reactor",
    title: REACTOR_TITLE,
    description: "Keep the reactor stable",
    url: "{BASE_URL}/reactor",
    icon: "radiation",
    tags: ["sentinel", "timed"],
    component: ReactorGame,
    password: REACTOR_PW_ID,
    difficulty: "easy",
    base_task: "reactor",
    duration: 10,
    adversarial_attacks: true,
    settings: { theme: "dark", retries: 3 },
  },
  {
    id: "sentinel-viz",
    path: "sentinel-visualization",
    title: "Visualization",
    tags: ["sentinel"],
    component: VizPage,
    password: REACTOR_PW_ID,
  },
  {
    id: "vault-hard",
    path: "vault",
    title: "The Vault",
    tags: ["sentinel"],
    component: VaultGame,
    password: VAULT_PW_ID,
    difficulty: "hard",
  },
  {
    id: "ghost-task",
    path: "ghost",
    title: "Ghost",
    tags: ["sentinel"],
    component: GhostGame,
    password: MISSING_PW_ID,
  },
  {
    id: "no-component",
    path: "empty",
    title: "Empty",
    tags: ["sentinel"],
    password: REACTOR_PW_ID,
  },
  {
    id: "untagged",
    path: "plain",
    title: "Plain page",
    tags: ["info"],
    component: PlainPage,
    password: REACTOR_PW_ID,
  },
];
`

const constantsSrc = `
export const REACTOR_PW_ID = "reactor-easy";
export const VAULT_PW_ID = "vault-hard";
export const REACTOR_TITLE = "Reactor Control";
`

const secretsSrc = `
export const TASK_PASSWORDS: Record<string, string> = {
  "reactor-easy": "FLAG-991",
  "vault-hard": "PW123",
};
`

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r := NewResolver()
	r.AddConstantsSource(constantsSrc)
	r.AddSecretsSource(secretsSrc)
	return r
}

func TestCompileIncludesResolvedRoutes(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	tasks := c.Compile(registrySrc)

	require.Len(t, tasks, 2)
	assert.Equal(t, "reactor-easy", tasks[0].ID)
	assert.Equal(t, "vault-hard", tasks[1].ID)
}

func TestCompileResolvesTwoStepPassword(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	tasks := c.Compile(registrySrc)

	require.NotEmpty(t, tasks)
	assert.Equal(t, "FLAG-991", tasks[0].Password)
	assert.Equal(t, "PW123", tasks[1].Password)
}

func TestCompileResolvesConstantFields(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	tasks := c.Compile(registrySrc)

	require.NotEmpty(t, tasks)
	assert.Equal(t, "Reactor Control", tasks[0].Title)
	assert.Equal(t, "10", tasks[0].Duration)
	assert.True(t, tasks[0].AdversarialAttacks)
}

func TestReservedPathExcluded(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	tasks := c.Compile(registrySrc)

	for _, task := range tasks {
		assert.NotEqual(t, "sentinel-visualization", task.Path,
			"reserved path must be excluded regardless of other fields")
	}
}

func TestUnresolvablePasswordSkipsRouteAndContinues(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	c := NewCompiler(newResolver(t), logger)
	tasks := c.Compile(registrySrc)

	// ghost-task is dropped, vault-hard (after it in source order before
	// sorting considerations) still compiles.
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.NotContains(t, ids, "ghost-task")
	assert.Contains(t, ids, "vault-hard")
	assert.Contains(t, logBuf.String(), "MISSING_PW_ID")
}

func TestMissingComponentExcluded(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	for _, task := range c.Compile(registrySrc) {
		assert.NotEqual(t, "no-component", task.ID)
	}
}

func TestUntaggedRouteExcluded(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	for _, task := range c.Compile(registrySrc) {
		assert.NotEqual(t, "untagged", task.ID)
	}
}

func TestBaseURLSubstitution(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default(), WithBaseURL("https://bench.example.com"))
	tasks := c.Compile(registrySrc)

	require.NotEmpty(t, tasks)
	assert.Equal(t, "https://bench.example.com/reactor", tasks[0].URL)

	// vault has no url field: built from the path.
	assert.Equal(t, "https://bench.example.com/vault", tasks[1].URL)
}

func TestManifestIsSparse(t *testing.T) {
	c := NewCompiler(newResolver(t), slog.Default())
	tasks := c.Compile(registrySrc)
	require.NotEmpty(t, tasks)

	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, tasks))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(tasks))

	// vault-hard has no description or icon: those keys must be absent, not
	// empty strings.
	var vault map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &vault))
	assert.NotContains(t, vault, "description")
	assert.NotContains(t, vault, "icon")
	assert.NotContains(t, vault, "adversarial_attacks")
	assert.Equal(t, "vault-hard", vault["id"])
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "routes.tsx")
	outPath := filepath.Join(dir, "tasks.jsonl")
	require.NoError(t, os.WriteFile(registryPath, []byte(registrySrc), 0o644))

	c := NewCompiler(newResolver(t), slog.Default())
	n, err := c.CompileFile(registryPath, outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, len(strings.Split(strings.TrimSpace(string(data)), "\n")))
}

func TestResolverDirectPasswordID(t *testing.T) {
	r := newResolver(t)
	// A quoted password id bypasses the constant step.
	secret, ok := r.Password("vault-hard")
	require.True(t, ok)
	assert.Equal(t, "PW123", secret)
}

func TestParseRoutesBalancesNestedBraces(t *testing.T) {
	recs := parseRoutes(registrySrc)
	require.Len(t, recs, 6)

	// The nested settings object must not leak its fields into the record.
	assert.Equal(t, "reactor-easy", recs[0].str("id"))
	_, hasTheme := recs[0].fields["theme"]
	assert.False(t, hasTheme)
}
