package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/doctree"
	"github.com/relief-ops/checklist-cli/internal/render"
)

var (
	runFile            string
	runOutput          string
	runFormat          string
	runIncludeFlagged  bool
	runMinLevel        string
	runExcludeSubjects []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract a checklist from a plan document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Flags override the configured selection policy.
		if cmd.Flags().Changed("include-flagged") {
			cfg.Selector.IncludeFlagged = runIncludeFlagged
		}
		if runMinLevel != "" {
			cfg.Selector.MinLevel = runMinLevel
		}
		if len(runExcludeSubjects) > 0 {
			cfg.Selector.ExcludeSubjects = runExcludeSubjects
		}

		if !useStub {
			if err := cfg.Validate("extract"); err != nil {
				return err
			}
		}

		doc, err := doctree.Load(runFile)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, doc)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", result.RunID),
			zap.Int("actions", len(result.State.CompleteActions)),
			zap.Int("flagged", result.State.Metadata.FlaggedCount),
			zap.Int("nodes_failed", result.State.Metadata.NodesFailed),
		)

		var artifact string
		switch runFormat {
		case "markdown":
			artifact = result.Markdown
		case "console":
			artifact = render.Console(result.Checklist)
		case "json":
			data, marshalErr := json.MarshalIndent(result.Checklist, "", "  ")
			if marshalErr != nil {
				return eris.Wrap(marshalErr, "marshal checklist")
			}
			artifact = string(data)
		default:
			return eris.Errorf("unknown format %q (markdown, console, json)", runFormat)
		}

		if runOutput != "" {
			if err := os.WriteFile(runOutput, []byte(artifact+"\n"), 0644); err != nil {
				return eris.Wrapf(err, "write %s", runOutput)
			}
			zap.L().Info("checklist written", zap.String("path", runOutput))
			return nil
		}

		fmt.Fprintln(os.Stdout, artifact)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "plan document JSON (required)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "write the checklist to this path instead of stdout")
	runCmd.Flags().StringVar(&runFormat, "format", "markdown", "output format: markdown, console, json")
	runCmd.Flags().BoolVar(&useStub, "stub", false, "use the offline keyword backend instead of Claude")
	runCmd.Flags().BoolVar(&runIncludeFlagged, "include-flagged", false, "include incomplete actions in the rendered checklist")
	runCmd.Flags().StringVar(&runMinLevel, "min-level", "", "drop actions below this tier (local, regional, national)")
	runCmd.Flags().StringSliceVar(&runExcludeSubjects, "exclude-subject", nil, "node id whose exclusive actions are dropped (repeatable)")
	_ = runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}
