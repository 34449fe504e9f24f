// SPDX-License-Identifier: AGPL-3.0-only
package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/SnowMenchik/Parsr/internal/config"
	"github.com/SnowMenchik/Parsr/internal/store"
	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent collection runs",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", config.DefaultHistoryLimit, "number of runs to show")
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if st == nil {
		return errors.New("run history is disabled, set database.driver and database.dsn")
	}
	defer closeStore(st)

	runs, err := st.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	printHistory(cmd.OutOrStdout(), runs)
	return nil
}

func printHistory(w io.Writer, runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTOTAL\tPLATFORMS")
	for _, r := range runs {
		total := worker.FormatThousands(r.Total)
		if r.NoData {
			total = "no data"
		}

		platforms := ""
		for i, p := range r.Platforms {
			if i > 0 {
				platforms += ", "
			}
			platforms += fmt.Sprintf("%s %d", p.Platform, p.Subtotal)
			if p.Err != "" {
				platforms += " (failed)"
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Local().Format(time.DateTime), total, platforms)
	}
	_ = tw.Flush()
}
