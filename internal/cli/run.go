// SPDX-License-Identifier: AGPL-3.0-only
package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SnowMenchik/Parsr/internal/config"
	"github.com/SnowMenchik/Parsr/internal/credentials"
	"github.com/SnowMenchik/Parsr/internal/exports"
	"github.com/SnowMenchik/Parsr/internal/links"
	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/spf13/cobra"
)

var (
	linksFile string
	csvPath   string
	noNotify  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect views for every link in the links file and print the total",
	RunE:  runAction,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&linksFile, "links", "l", "", "links file, one URL per line (overrides config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write per-post results to this CSV file or directory")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not post the summary to Discord")
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if linksFile != "" {
		cfg.LinksFile = linksFile
	}

	rawLinks, err := links.ReadLinksFile(cfg.LinksFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Найдено ссылок: %d\n", len(rawLinks))

	prompter := credentials.NewTerminalPrompter()
	provider, err := interactiveCredentials(cfg, prompter)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		log.Printf("[WARN] Run history unavailable: %v", err)
		st = nil
	}
	defer closeStore(st)

	runner := newRunner(cfg, provider, terminalAuthorizer(prompter))
	w := newWorker(cfg, runner, st, !noNotify)

	report, err := w.RunSync(ctx, rawLinks)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)

	if csvPath != "" {
		path, err := exports.ExportReport(csvPath, report)
		if err != nil {
			log.Printf("[WARN] Failed to export CSV: %v", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "CSV: %s\n", path)
		}
	}

	return nil
}

func printReport(w io.Writer, r *worker.Report) {
	fmt.Fprintln(w, "\nРаспределение по платформам:")
	for _, p := range links.Platforms {
		count := 0
		for _, pr := range r.Platforms {
			if pr.Platform == p {
				count = pr.Count
			}
		}
		fmt.Fprintf(w, "  %s: %d постов\n", p, count)
	}

	fmt.Fprintln(w, "\n==================================================")

	total, err := r.Result()
	if errors.Is(err, worker.ErrNoData) {
		fmt.Fprintln(w, "Не удалось получить данные по просмотрам")
		return
	}
	fmt.Fprintf(w, "Всего просмотров: %s\n", worker.FormatThousands(total))
}
