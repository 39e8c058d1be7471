// Package cli wires the config, index, scanner, analysis, action, and
// report packages into the storage-hygiene command surface.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loganrooks/storage-hygiene-go/internal/action"
	"github.com/loganrooks/storage-hygiene-go/internal/analysis"
	"github.com/loganrooks/storage-hygiene-go/internal/config"
	"github.com/loganrooks/storage-hygiene-go/internal/fsutil"
	"github.com/loganrooks/storage-hygiene-go/internal/index"
	"github.com/loganrooks/storage-hygiene-go/internal/logger"
	"github.com/loganrooks/storage-hygiene-go/internal/report"
	"github.com/loganrooks/storage-hygiene-go/internal/scanner"
)

// ErrInvalidTarget is returned when none of the requested target arguments
// resolve to a directory. Fatal at startup: the other requested targets are
// each warned about individually as they're found invalid.
var ErrInvalidTarget = errors.New("cli: no target path resolves to a directory")

// resolveTargets stats each of dirs, warns and drops any that don't resolve
// to an existing directory, and fails with ErrInvalidTarget only if none of
// them do.
func resolveTargets(dirs []string) ([]string, error) {
	var targets []string
	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			logger.Warn("invalid target %s: %v", d, err)
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			logger.Warn("invalid target %s: %v", d, err)
			continue
		}
		if !info.IsDir() {
			logger.Warn("invalid target %s: not a directory", d)
			continue
		}
		targets = append(targets, abs)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, dirs)
	}
	return targets, nil
}

// Run dispatches args to the matching subcommand.
func Run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "version", "--version", "-v":
		return cmdVersion()
	case "scan":
		return cmdScan(args[1:])
	case "analyze":
		return cmdAnalyze(args[1:])
	case "run":
		return cmdRun(args[1:])
	case "help", "-h", "--help":
		return usage()
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage() error {
	fmt.Println(`storage-hygiene commands: scan | analyze | run

Examples:
  storage-hygiene scan ~/Downloads
  storage-hygiene analyze ~/Downloads --config hygiene.yaml
  storage-hygiene run ~/Downloads --config hygiene.yaml --dry-run=false`)
	return nil
}

type boolFlag struct {
	value bool
	set   bool
}

func (b *boolFlag) Set(s string) error {
	if s == "" {
		b.value = true
		b.set = true
		return nil
	}
	switch strings.ToLower(s) {
	case "true", "1":
		b.value = true
	case "false", "0":
		b.value = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	b.set = true
	return nil
}

func (b *boolFlag) String() string {
	if b.value {
		return "true"
	}
	return "false"
}

func (b *boolFlag) IsBoolFlag() bool { return true }

// commonFlags is the flag surface shared by scan/analyze/run.
type commonFlags struct {
	configPath string
	dbPath     string
	workers    int
	dryRun     boolFlag
}

func parseCommonFlags(name string, args []string) (*flag.FlagSet, *commonFlags, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to the rule configuration file")
	fs.StringVar(&cf.dbPath, "db-path", "./.storage-hygiene-index.db", "path to the metadata index database")
	fs.IntVar(&cf.workers, "workers", scanner.DefaultWorkers, "number of concurrent hashing workers")
	fs.Var(&cf.dryRun, "dry-run", "override the configured dry-run setting")
	// Flags may appear before, between, or after the directory arguments:
	// flag.Parse stops at the first positional, so resume after each one.
	var dirs []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, nil, nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		dirs = append(dirs, rest[0])
		rest = rest[1:]
	}
	if len(dirs) == 0 {
		return nil, nil, nil, fmt.Errorf("%s: at least one directory argument is required", name)
	}
	return fs, cf, dirs, nil
}

func openPipeline(cf *commonFlags) (*index.Index, config.RuleConfig, error) {
	rc, err := config.Load(cf.configPath)
	if err != nil {
		return nil, config.RuleConfig{}, err
	}
	idx, err := index.Open(cf.dbPath)
	if err != nil {
		return nil, config.RuleConfig{}, err
	}
	return idx, rc, nil
}

func ignoreFor(root string, rc config.RuleConfig) fsutil.Ignore {
	return fsutil.DefaultIgnore().WithStagingDir(root, rc.Action.StagingDir)
}

func cmdScan(args []string) error {
	_, cf, dirs, err := parseCommonFlags("scan", args)
	if err != nil {
		return err
	}
	targets, err := resolveTargets(dirs)
	if err != nil {
		return err
	}
	idx, rc, err := openPipeline(cf)
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx := context.Background()
	for _, absDir := range targets {
		summary, err := scanner.Scan(ctx, idx, absDir, scanner.Options{
			Ignore:  ignoreFor(absDir, rc),
			Workers: cf.workers,
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", absDir, err)
		}
		fmt.Printf("%s: visited %d, hashed %d, skipped %d, errored %d\n",
			absDir, summary.Visited, summary.Hashed, summary.Skipped, summary.Errored)
	}
	return nil
}

func cmdAnalyze(args []string) error {
	_, cf, dirs, err := parseCommonFlags("analyze", args)
	if err != nil {
		return err
	}
	if _, err := resolveTargets(dirs); err != nil {
		return err
	}
	idx, rc, err := openPipeline(cf)
	if err != nil {
		return err
	}
	defer idx.Close()

	snapshot, err := idx.Snapshot()
	if err != nil {
		return err
	}
	actions := analysis.Evaluate(snapshot, rc)
	printActionMap(actions)
	return nil
}

func printActionMap(actions *analysis.ActionMap) {
	if actions.Len() == 0 {
		fmt.Println("no actions proposed")
		return
	}
	for _, kind := range actions.Kinds() {
		candidates := actions.Candidates(kind)
		fmt.Printf("%s (%d):\n", kind, len(candidates))
		for _, c := range candidates {
			fmt.Printf("  %s — %s\n", c.Path, c.Reason)
		}
	}
}

func cmdRun(args []string) error {
	_, cf, dirs, err := parseCommonFlags("run", args)
	if err != nil {
		return err
	}
	targets, err := resolveTargets(dirs)
	if err != nil {
		return err
	}

	idx, rc, err := openPipeline(cf)
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx := context.Background()
	for _, absDir := range targets {
		if _, err := scanner.Scan(ctx, idx, absDir, scanner.Options{
			Ignore:  ignoreFor(absDir, rc),
			Workers: cf.workers,
		}); err != nil {
			return fmt.Errorf("scan %s: %w", absDir, err)
		}
	}

	snapshot, err := idx.Snapshot()
	if err != nil {
		return err
	}
	actions := analysis.Evaluate(snapshot, rc)

	var dryRunOverride *bool
	if cf.dryRun.set {
		dryRunOverride = &cf.dryRun.value
	}
	executor := action.New(idx, rc.Action.StagingDir, rc.Action.DryRun, dryRunOverride)

	rpt := report.New(executor.DryRun, rc.Action.StagingDir)
	summary, execErr := executor.Execute(actions)
	rpt.Finish(summary)

	reportPath := filepath.Join(rc.Action.StagingDir, "run-report.json")
	if err := rpt.WriteFile(reportPath); err != nil {
		logger.Error("failed to write run report: %v", err)
	} else {
		fmt.Printf("run report written to %s\n", reportPath)
	}

	if execErr != nil {
		return execErr
	}

	fmt.Printf("moved %d, skipped %d (dry_run=%v)\n", totalMoved(summary), summary.Skipped, executor.DryRun)
	return nil
}

func totalMoved(summary action.Summary) int {
	n := 0
	for _, v := range summary.Moved {
		n += v
	}
	return n
}

