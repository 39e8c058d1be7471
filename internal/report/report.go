// Package report builds and persists the RunReport artifact that each run
// invocation produces.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loganrooks/storage-hygiene-go/internal/action"
	"github.com/loganrooks/storage-hygiene-go/internal/analysis"
	"github.com/loganrooks/storage-hygiene-go/internal/schemas"
)

// RunReport is the durable record of one invocation: what was found, what
// was (or would have been) moved, and what was skipped.
type RunReport struct {
	RunID       string                `json:"runId"`
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt time.Time             `json:"completedAt"`
	DryRun      bool                  `json:"dryRun"`
	StagingDir  string                `json:"stagingDir"`
	Counts      map[analysis.Kind]int `json:"counts"`
	Moved       map[analysis.Kind]int `json:"moved"`
	Skipped     int                   `json:"skipped"`
}

// New starts a report for a run beginning now. Call Finish once the run
// completes to fill in CompletedAt and the outcome summary.
func New(dryRun bool, stagingDir string) *RunReport {
	return &RunReport{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		DryRun:     dryRun,
		StagingDir: stagingDir,
		Counts:     map[analysis.Kind]int{},
		Moved:      map[analysis.Kind]int{},
	}
}

// Finish records the outcome of an action.Executor run and stamps
// CompletedAt.
func (r *RunReport) Finish(summary action.Summary) {
	r.CompletedAt = time.Now().UTC()
	r.Counts = summary.Counts
	r.Moved = summary.Moved
	r.Skipped = summary.Skipped
}

// asMap flattens RunReport into the plain map[string]any shape the
// run-report schema validates, since Kind-keyed maps don't round-trip
// through the schema validator's JSON-native type expectations directly.
func (r *RunReport) asMap() map[string]any {
	counts := make(map[string]any, len(r.Counts))
	for k, v := range r.Counts {
		counts[string(k)] = v
	}
	moved := make(map[string]any, len(r.Moved))
	for k, v := range r.Moved {
		moved[string(k)] = v
	}
	return map[string]any{
		"runId":       r.RunID,
		"startedAt":   r.StartedAt.Format(time.RFC3339Nano),
		"completedAt": r.CompletedAt.Format(time.RFC3339Nano),
		"dryRun":      r.DryRun,
		"stagingDir":  r.StagingDir,
		"counts":      counts,
		"moved":       moved,
		"skipped":     r.Skipped,
	}
}

// Validate checks the report against the embedded run-report schema.
func (r *RunReport) Validate() error {
	return schemas.ValidateInstance(schemas.RunReport, r.asMap())
}

// WriteFile validates and writes the report as indented JSON to path,
// creating parent directories as needed.
func (r *RunReport) WriteFile(path string) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: create dir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
