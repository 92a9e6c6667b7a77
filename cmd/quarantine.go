package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relief-ops/checklist-cli/internal/doctree"
	"github.com/relief-ops/checklist-cli/internal/extract"
	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and retry nodes that failed extraction",
	Long:  "Nodes whose extraction exhausted its retries are parked in the quarantine. They can be listed, retried against the original document, or dropped.",
}

// -- quarantine list --

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined nodes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runID, _ := cmd.Flags().GetString("run")
		class, _ := cmd.Flags().GetString("class")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListQuarantine(ctx, resilience.QuarantineFilter{
			RunID:      runID,
			ErrorClass: class,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "quarantine list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Quarantine is empty.")
			return nil
		}

		formatQuarantine(os.Stdout, entries)
		return nil
	},
}

// -- quarantine retry --

var (
	quarantineRetryFile string
	quarantineRetryRun  string
)

var quarantineRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-extract eligible quarantined nodes",
	Long:  "Loads the original plan document, re-runs extraction for each eligible quarantined node of the run, and prints the recovered actions. Successful nodes leave the quarantine; failures stay with an increased retry count.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !useStub {
			if err := cfg.Validate("extract"); err != nil {
				return err
			}
		}

		doc, err := doctree.Load(quarantineRetryFile)
		if err != nil {
			return err
		}
		if err := doctree.Validate(doc.Root); err != nil {
			return err
		}
		byID := make(map[string]*model.DocumentNode)
		for _, n := range doctree.Flatten(doc.Root) {
			byID[n.ID] = n
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		client, err := initBackend()
		if err != nil {
			return err
		}
		ext := extract.New(client)

		entries, err := st.ListQuarantine(ctx, resilience.QuarantineFilter{RunID: quarantineRetryRun})
		if err != nil {
			return eris.Wrap(err, "quarantine retry: list")
		}

		now := time.Now().UTC()
		var recovered []model.Action
		var stillFailed int

		for _, entry := range entries {
			if !entry.Eligible(now) {
				continue
			}
			node, ok := byID[entry.NodeID]
			if !ok {
				zap.L().Warn("quarantined node missing from document",
					zap.String("node_id", entry.NodeID),
				)
				continue
			}

			res, extractErr := ext.ExtractNode(ctx, node, 0)
			if extractErr != nil {
				stillFailed++
				entry.RetryCount++
				entry.LastFailedAt = now
				entry.NextRetryAt = now.Add(time.Duration(entry.RetryCount) * 10 * time.Minute)
				entry.Error = extractErr.Error()
				entry.ErrorClass = resilience.Classify(extractErr)
				if enqueueErr := st.EnqueueQuarantine(ctx, entry); enqueueErr != nil {
					zap.L().Warn("failed to update quarantine entry", zap.Error(enqueueErr))
				}
				continue
			}

			recovered = append(recovered, res.Complete...)
			for _, fa := range res.Flagged {
				recovered = append(recovered, fa.Action)
			}
			if deleteErr := st.DeleteQuarantine(ctx, entry.ID); deleteErr != nil {
				zap.L().Warn("failed to delete quarantine entry", zap.Error(deleteErr))
			}
		}

		zap.L().Info("quarantine retry complete",
			zap.Int("recovered_actions", len(recovered)),
			zap.Int("still_failed", stillFailed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recovered)
	},
}

// -- quarantine delete --

var quarantineDeleteCmd = &cobra.Command{
	Use:   "delete <entry-id>",
	Short: "Drop a quarantine entry without retrying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.DeleteQuarantine(ctx, args[0]); err != nil {
			return eris.Wrap(err, "quarantine delete")
		}
		return nil
	},
}

func init() {
	quarantineListCmd.Flags().String("run", "", "filter by run id")
	quarantineListCmd.Flags().String("class", "", "filter by error class (transient, permanent)")
	quarantineListCmd.Flags().Int("limit", 100, "max number of entries to display")

	quarantineRetryCmd.Flags().StringVar(&quarantineRetryFile, "file", "", "plan document JSON the run was extracted from (required)")
	quarantineRetryCmd.Flags().StringVar(&quarantineRetryRun, "run", "", "restrict the retry to one run id")
	quarantineRetryCmd.Flags().BoolVar(&useStub, "stub", false, "use the offline keyword backend instead of Claude")
	_ = quarantineRetryCmd.MarkFlagRequired("file")

	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantineRetryCmd)
	quarantineCmd.AddCommand(quarantineDeleteCmd)
	rootCmd.AddCommand(quarantineCmd)
}

// formatQuarantine writes a tabular list of quarantine entries to w.
func formatQuarantine(out io.Writer, entries []resilience.QuarantinedNode) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tNODE\tCLASS\tRETRIES\tNEXT_RETRY\tERROR")
	for _, e := range entries {
		errText := e.Error
		if runes := []rune(errText); len(runes) > 50 {
			errText = string(runes[:47]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			truncateID(e.ID),
			truncateID(e.RunID),
			e.NodeID,
			e.ErrorClass,
			e.RetryCount,
			e.MaxRetries,
			e.NextRetryAt.Format("2006-01-02 15:04"),
			errText,
		)
	}
	_ = w.Flush()
}
