package team

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// configSchemaJSON is the JSON Schema a team_config payload must satisfy.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["engine"],
  "properties": {
    "engine": {"type": "string", "minLength": 1},
    "model": {"type": "string"},
    "agents": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "max_turns": {"type": "integer", "minimum": 1}
  }
}`

var (
	configSchema  *jsonschema.Schema
	schemaPrinter = message.NewPrinter(language.English)
)

func init() {
	var doc any
	if err := json.Unmarshal([]byte(configSchemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded team config schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("team_config.schema.json", doc); err != nil {
		panic(fmt.Sprintf("failed to add team config schema resource: %v", err))
	}
	sch, err := compiler.Compile("team_config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile team config schema: %v", err))
	}
	configSchema = sch
}

// Config describes the team composition requested in a start frame.
type Config struct {
	EngineType string         `mapstructure:"engine"`
	Model      string         `mapstructure:"model"`
	Agents     []string       `mapstructure:"agents"`
	MaxTurns   int            `mapstructure:"max_turns"`
	Extra      map[string]any `mapstructure:",remain"`
}

// ParseConfig validates a raw team_config map against the embedded schema and
// decodes it into a Config.
func ParseConfig(raw map[string]any) (*Config, error) {
	if err := configSchema.Validate(toJSONCompatible(raw)); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			var errs []string
			collectSchemaErrors(ve, &errs)
			return nil, fmt.Errorf("invalid team_config: %s", strings.Join(errs, "; "))
		}
		return nil, fmt.Errorf("invalid team_config: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding team_config: %w", err)
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 20
	}
	return &cfg, nil
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(schemaPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// toJSONCompatible normalizes decoded values so the schema validator sees
// JSON-shaped types.
func toJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = toJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = toJSONCompatible(v2)
		}
		return result
	default:
		return val
	}
}
