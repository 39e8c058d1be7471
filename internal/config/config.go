// Package config loads a RuleConfig from a YAML file, merges it over
// built-in defaults, and validates it against an embedded JSON Schema.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loganrooks/storage-hygiene-go/internal/schemas"
)

// ErrConfiguration wraps any fatal configuration problem: missing file,
// malformed mapping, invalid types, missing required rule parameters.
var ErrConfiguration = fmt.Errorf("config: invalid configuration")

// DuplicateFilesRule toggles duplicate-content detection.
type DuplicateFilesRule struct {
	Enabled bool
}

// LargeFilesRule toggles and parameterizes the oversize-file rule.
type LargeFilesRule struct {
	Enabled   bool
	MinSizeMB *float64
}

// OldFilesRule toggles and parameterizes the stale-file rule.
type OldFilesRule struct {
	Enabled bool
	MaxDays *int
}

// ActionConfig parameterizes the Action Executor.
type ActionConfig struct {
	StagingDir string
	DryRun     bool
}

// RuleConfig is the read-only input to the Analysis Engine and Action
// Executor.
type RuleConfig struct {
	DuplicateFiles DuplicateFilesRule
	LargeFiles     LargeFilesRule
	OldFiles       OldFilesRule
	Action         ActionConfig
}

// Defaults returns the baseline RuleConfig used when a key is absent from
// the loaded file (every rule disabled, dry-run on, staging under the
// working directory).
func Defaults() RuleConfig {
	return RuleConfig{
		Action: ActionConfig{
			StagingDir: "./.storage-hygiene-staging",
			DryRun:     true,
		},
	}
}

// Load reads path as YAML, validates it against the embedded rule-config
// schema, merges it over Defaults(), and returns the resulting RuleConfig.
// An empty path returns Defaults() unchanged; a file that cannot be read,
// including one that does not exist, fails with ErrConfiguration.
func Load(path string) (RuleConfig, error) {
	rc := Defaults()
	if path == "" {
		return rc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rc, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return rc, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}

	if err := schemas.ValidateInstance(schemas.RuleConfig, raw); err != nil {
		return rc, fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
	}

	applyDotted(&rc, raw)
	return rc, nil
}

// applyDotted walks the "analysis.rules.*" / "action.*" key space,
// overlaying values found in raw onto rc.
func applyDotted(rc *RuleConfig, raw map[string]any) {
	get := func(path string) (any, bool) {
		return lookup(raw, strings.Split(path, "."))
	}

	if v, ok := get("analysis.rules.duplicate_files.enabled"); ok {
		rc.DuplicateFiles.Enabled = asBool(v)
	}
	if v, ok := get("analysis.rules.large_files.enabled"); ok {
		rc.LargeFiles.Enabled = asBool(v)
	}
	if v, ok := get("analysis.rules.large_files.min_size_mb"); ok {
		if f, ok := asFloat(v); ok {
			rc.LargeFiles.MinSizeMB = &f
		}
	}
	if v, ok := get("analysis.rules.old_files.enabled"); ok {
		rc.OldFiles.Enabled = asBool(v)
	}
	if v, ok := get("analysis.rules.old_files.max_days"); ok {
		if n, ok := asInt(v); ok {
			rc.OldFiles.MaxDays = &n
		}
	}

	// Both "action.*" and "action_executor.*" spellings are accepted;
	// action.* wins when both are present.
	if v, ok := get("action_executor.staging_dir"); ok {
		rc.Action.StagingDir = fmt.Sprint(v)
	}
	if v, ok := get("action.staging_dir"); ok {
		rc.Action.StagingDir = fmt.Sprint(v)
	}
	if v, ok := get("action_executor.dry_run"); ok {
		rc.Action.DryRun = asBool(v)
	}
	if v, ok := get("action.dry_run"); ok {
		rc.Action.DryRun = asBool(v)
	}
}

func lookup(m map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	v, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return v, true
	}
	next, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(next, path[1:])
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
