// SPDX-License-Identifier: AGPL-3.0-only
package exports

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/SnowMenchik/Parsr/internal/links"
	"github.com/SnowMenchik/Parsr/internal/store"
	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/google/uuid"
)

var header = []string{
	"run_id",
	"platform",
	"link",
	"canonical_url",
	"views",
}

type row struct {
	platform links.Platform
	link     string
	views    int
}

// WriteReportCSV writes one row per post result of a finished run.
func WriteReportCSV(w io.Writer, r *worker.Report) error {
	var rows []row
	for _, p := range r.Platforms {
		for _, res := range p.Results {
			rows = append(rows, row{platform: p.Platform, link: res.Link, views: res.Views})
		}
	}
	return writeRows(w, r.RunID, rows)
}

// WriteResultsCSV writes stored results of a past run.
func WriteResultsCSV(w io.Writer, runID uuid.UUID, results []store.StoredResult) error {
	rows := make([]row, 0, len(results))
	for _, res := range results {
		rows = append(rows, row{platform: res.Platform, link: res.Link, views: res.Views})
	}
	return writeRows(w, runID, rows)
}

// ExportReport writes the report to path. When path is a directory a
// timestamped file name is generated inside it.
func ExportReport(path string, r *worker.Report) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, fmt.Sprintf("views_%s_%s.csv", r.RunID.String(), time.Now().Format("20060102_150405")))
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteReportCSV(file, r); err != nil {
		return "", err
	}

	return path, nil
}

func writeRows(w io.Writer, runID uuid.UUID, rows []row) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		canonical := ""
		if ref, ok := links.Reference(r.link); ok {
			canonical = ref.CanonicalURL()
		}

		if err := writer.Write([]string{
			runID.String(),
			string(r.platform),
			r.link,
			canonical,
			strconv.Itoa(r.views),
		}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
