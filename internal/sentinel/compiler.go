package sentinel

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	// MarkerTag flags a route as a benchmark task.
	MarkerTag = "sentinel"

	// BaseURLPlaceholder is substituted with the configured base URL in
	// emitted task URLs.
	BaseURLPlaceholder = "{BASE_URL}"
)

// reservedPaths are infrastructure routes that carry the marker tag but are
// never tasks.
var reservedPaths = map[string]bool{
	"sentinel-home":          true,
	"sentinel-visualization": true,
}

// Task is one emitted manifest record. Every field is omitted when empty so
// the JSON-Lines output stays sparse.
type Task struct {
	ID                 string   `json:"id"`
	Path               string   `json:"path,omitempty"`
	Title              string   `json:"title,omitempty"`
	Description        string   `json:"description,omitempty"`
	URL                string   `json:"url,omitempty"`
	Icon               string   `json:"icon,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Password           string   `json:"password,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
	BaseTask           string   `json:"base_task,omitempty"`
	Duration           string   `json:"duration,omitempty"`
	Criteria           string   `json:"criteria,omitempty"`
	Activity           string   `json:"activity,omitempty"`
	Noise              string   `json:"noise,omitempty"`
	Realism            string   `json:"realism,omitempty"`
	RelativeVsAbsolute string   `json:"relative_vs_absolute,omitempty"`
	AdversarialAttacks bool     `json:"adversarial_attacks,omitempty"`
	FailureTolerance   string   `json:"failure_tolerance,omitempty"`
}

// Compiler turns registry source text into the task manifest.
type Compiler struct {
	resolver *Resolver
	logger   *slog.Logger
	baseURL  string
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithBaseURL sets the value substituted for the base-URL placeholder.
// Leaving it unset keeps the placeholder in the output.
func WithBaseURL(u string) CompilerOption {
	return func(c *Compiler) {
		c.baseURL = u
	}
}

// NewCompiler creates a compiler over the given resolver.
func NewCompiler(resolver *Resolver, logger *slog.Logger, opts ...CompilerOption) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compiler{
		resolver: resolver,
		logger:   logger,
		baseURL:  BaseURLPlaceholder,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile parses the registry source and returns the included tasks. A route
// failing an inclusion rule, or whose password cannot be resolved, is skipped
// with a warning; one bad route never aborts the extraction.
func (c *Compiler) Compile(registrySrc string) []Task {
	var tasks []Task
	for _, rec := range parseRoutes(registrySrc) {
		task, ok := c.compileRoute(rec)
		if ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (c *Compiler) compileRoute(rec routeRecord) (Task, bool) {
	id := rec.str("id")

	if !rec.hasTag(MarkerTag) {
		return Task{}, false
	}

	path := c.resolveString(rec, "path", id)
	if reservedPaths[path] {
		return Task{}, false
	}

	if _, ok := rec.fields["component"]; !ok {
		c.logger.Warn("route has no UI component, skipping", "route", id)
		return Task{}, false
	}

	password, ok := c.resolvePassword(rec, id)
	if !ok {
		// Without a password the task cannot be auto-scored.
		return Task{}, false
	}

	task := Task{
		ID:                 id,
		Path:               path,
		Title:              c.resolveString(rec, "title", id),
		Description:        c.resolveString(rec, "description", id),
		URL:                c.buildURL(rec, path, id),
		Icon:               c.resolveString(rec, "icon", id),
		Tags:               rec.list("tags"),
		Password:           password,
		Difficulty:         c.resolveString(rec, "difficulty", id),
		BaseTask:           c.resolveString(rec, "base_task", id),
		Duration:           c.resolveString(rec, "duration", id),
		Criteria:           c.resolveString(rec, "criteria", id),
		Activity:           c.resolveString(rec, "activity", id),
		Noise:              c.resolveString(rec, "noise", id),
		Realism:            c.resolveString(rec, "realism", id),
		RelativeVsAbsolute: c.resolveString(rec, "relative_vs_absolute", id),
		FailureTolerance:   c.resolveString(rec, "failure_tolerance", id),
	}
	if v, ok := rec.boolean("adversarial_attacks"); ok {
		task.AdversarialAttacks = v
	}
	return task, true
}

// resolveString returns the field as a string, resolving bare identifiers
// through the constants table. An unresolvable identifier degrades to absent
// with a warning.
func (c *Compiler) resolveString(rec routeRecord, key, routeID string) string {
	if s := rec.str(key); s != "" {
		return s
	}
	if ident, ok := rec.ident(key); ok {
		if v, found := c.resolver.Constant(ident); found {
			return v
		}
		c.logger.Warn("unresolvable constant reference, dropping field",
			"route", routeID, "field", key, "identifier", ident)
		return ""
	}
	if n, ok := rec.number(key); ok {
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	}
	return ""
}

func (c *Compiler) resolvePassword(rec routeRecord, routeID string) (string, bool) {
	ident, isIdent := rec.ident("password")
	if !isIdent {
		ident = rec.str("password")
	}
	if ident == "" {
		c.logger.Warn("route has no password, skipping", "route", routeID)
		return "", false
	}
	secret, ok := c.resolver.Password(ident)
	if !ok {
		c.logger.Warn("password indirection did not resolve, skipping route",
			"route", routeID, "identifier", ident)
		return "", false
	}
	return secret, true
}

func (c *Compiler) buildURL(rec routeRecord, path, routeID string) string {
	url := c.resolveString(rec, "url", routeID)
	if url == "" && path != "" {
		url = BaseURLPlaceholder + "/" + path
	}
	return strings.ReplaceAll(url, BaseURLPlaceholder, c.baseURL)
}

// WriteManifest emits the tasks as JSON lines.
func WriteManifest(w io.Writer, tasks []Task) error {
	enc := json.NewEncoder(w)
	for _, task := range tasks {
		if err := enc.Encode(task); err != nil {
			return fmt.Errorf("encoding task %s: %w", task.ID, err)
		}
	}
	return nil
}

// CompileFile reads a registry source file and writes the manifest to
// outPath.
func (c *Compiler) CompileFile(registryPath, outPath string) (int, error) {
	src, err := os.ReadFile(registryPath)
	if err != nil {
		return 0, fmt.Errorf("reading route registry: %w", err)
	}

	tasks := c.Compile(string(src))

	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("creating manifest: %w", err)
	}
	defer f.Close()

	if err := WriteManifest(f, tasks); err != nil {
		return 0, err
	}
	return len(tasks), nil
}
