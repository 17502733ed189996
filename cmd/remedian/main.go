// Package main is the CLI entry point for remedian.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remedian/remedian/internal/config"
	"github.com/remedian/remedian/internal/engine"
	"github.com/remedian/remedian/internal/indicator"
	"github.com/remedian/remedian/internal/logging"
	"github.com/remedian/remedian/internal/report"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitUnresolved distinguishes "scan ran but left violations or unknowns"
// from the generic failure exit used for config and flag errors.
const exitUnresolved = 2

func main() {
	rootCmd := &cobra.Command{
		Use:   "remedian",
		Short: "Indicator-of-compromise scanner with automatic remediation",
		Long: `remedian evaluates a declarative set of compromise indicators against
the local machine — processes, files, preferences, and unified log
entries — and remediates the violations it is allowed to touch.
One binary, one run, one report.`,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringP("config", "c", "remedian.toml", "path to config file")
	rootCmd.Flags().StringSlice("indicators", nil, "extra indicator pack files or directories")
	rootCmd.Flags().String("only", "", "evaluate specific indicator ids only (comma-separated)")
	rootCmd.Flags().String("scope", "all", "restrict run to one scope kind: all, system, user")
	rootCmd.Flags().BoolP("dry-run", "n", false, "report remediation decisions without applying them")
	rootCmd.Flags().String("report-dir", "", "override report output directory")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.AddCommand(newUpdateCmd(version))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	extraPacks, _ := cmd.Flags().GetStringSlice("indicators")
	onlyStr, _ := cmd.Flags().GetString("only")
	scopeStr, _ := cmd.Flags().GetString("scope")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	reportDir, _ := cmd.Flags().GetString("report-dir")
	verbose, _ := cmd.Flags().GetBool("verbose")

	var only []string
	if onlyStr != "" {
		for _, s := range strings.Split(onlyStr, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				only = append(only, s)
			}
		}
	}

	filter := engine.ScopeFilter(scopeStr)
	switch filter {
	case engine.ScopeAll, engine.ScopeSystemOnly, engine.ScopeUserOnly:
	default:
		return fmt.Errorf("invalid --scope %q (want all, system, or user)", scopeStr)
	}

	log := logging.New(os.Stderr, verbose)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if reportDir != "" {
		cfg.Report.Dir = reportDir
	}

	reg, err := loadRegistry(cfg, extraPacks)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	log.Info().Int("indicators", reg.Len()).Msg("registry loaded")

	eng := engine.New(cfg, reg, engine.Options{
		Only:   only,
		Filter: filter,
		DryRun: dryRun,
	}, log)
	eng.AddSink(report.NewDirSink(cfg.Report.Dir))
	eng.AddSink(&report.SummarySink{Out: os.Stdout})

	rep, err := eng.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if code := engine.ExitCode(rep); code != 0 {
		os.Exit(exitUnresolved)
	}
	return nil
}

// loadRegistry assembles the effective indicator set: embedded default pack
// (unless disabled), config packs, then packs named on the command line.
func loadRegistry(cfg *config.Config, extra []string) (*indicator.Registry, error) {
	var reg *indicator.Registry
	var err error

	if cfg.UseDefaultPack {
		reg, err = indicator.LoadDefault()
		if err != nil {
			return nil, err
		}
	}

	for _, path := range append(append([]string{}, cfg.Packs...), extra...) {
		loaded, err := indicator.Load(path)
		if err != nil {
			return nil, err
		}
		if reg == nil {
			reg = loaded
			continue
		}
		reg, err = reg.Merge(loaded)
		if err != nil {
			return nil, err
		}
	}

	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("no indicators loaded")
	}
	return reg, nil
}
