package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"routeconv/internal/series"
)

const (
	runSheet         = "Run"
	convergenceSheet = "Convergence"
	maxSheetName     = 31
	// elapsedNumFmt is the built-in "0.00" number format.
	elapsedNumFmt = 2
	chartWidth    = 1200
	chartHeight   = 600
)

// XLSXSink writes one workbook per run with data and chart sheets per device.
// Params: output dir, file prefix and logger.
// Returns: xlsx sink instance.
type XLSXSink struct {
	dir    string
	prefix string
	logger *slog.Logger
}

// NewXLSXSink creates workbook sink.
// Params: dir output directory; prefix file name prefix; logger for written path.
// Returns: sink implementation.
func NewXLSXSink(dir, prefix string, logger *slog.Logger) *XLSXSink {
	return &XLSXSink{dir: dir, prefix: prefix, logger: logger}
}

// Write renders the workbook and saves it under <dir>/<prefix>_<unix>.xlsx.
// Params: ctx is checked before saving; rep report.
// Returns: error on sheet construction or file write.
func (s *XLSXSink) Write(ctx context.Context, rep Report) error {
	file := excelize.NewFile()
	defer file.Close()

	names := newSheetNames()
	if err := file.SetSheetName("Sheet1", names.take(runSheet)); err != nil {
		return fmt.Errorf("rename run sheet: %w", err)
	}
	if err := writeRunSheet(file, rep); err != nil {
		return err
	}

	elapsedStyle, err := file.NewStyle(&excelize.Style{NumFmt: elapsedNumFmt})
	if err != nil {
		return fmt.Errorf("create elapsed style: %w", err)
	}

	for _, device := range rep.Run.Usable() {
		set, _ := rep.Run.Series(device)
		dataSheet := names.take(device + " Data")
		graphSheet := names.take(device + " Graph")
		if err := writeDataSheet(file, dataSheet, set, elapsedStyle); err != nil {
			return fmt.Errorf("device %s: %w", device, err)
		}
		if err := writeGraphSheet(file, graphSheet, dataSheet, device, set); err != nil {
			return fmt.Errorf("device %s: %w", device, err)
		}
	}

	if rep.Analyzed {
		if err := writeConvergenceSheet(file, names.take(convergenceSheet), rep); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	path := ArtifactPath(s.dir, s.prefix, rep.Run, "xlsx")
	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	s.logger.Info("workbook written", slog.String("path", path))
	return nil
}

// writeRunSheet fills run metadata and the device status table.
// Params: file workbook; rep report.
// Returns: error on cell write.
func writeRunSheet(file *excelize.File, rep Report) error {
	run := rep.Run
	rows := [][]any{
		{"Started", run.Started.Format("2006-01-02 15:04:05 MST")},
		{"Duration (seconds)", run.Duration.Seconds()},
		{"Finished", run.Finished.Format("2006-01-02 15:04:05 MST")},
		{"Stop Reason", string(run.Stop)},
		{"Source", rep.Source},
		{"Protocol", rep.Protocol},
		{"Host", rep.Host.String()},
		{},
		{"Device", "Status", "Samples"},
	}
	for _, device := range run.Devices() {
		status, _ := run.Status(device)
		set, _ := run.Series(device)
		rows = append(rows, []any{device, status.String(), set.Len()})
	}
	return writeRows(file, runSheet, rows)
}

// writeDataSheet writes elapsed column plus one column per metric key.
// Params: file workbook; sheet target name; set frozen series; elapsedStyle number style id.
// Returns: error on sheet or cell write.
func writeDataSheet(file *excelize.File, sheet string, set *series.SeriesSet, elapsedStyle int) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	keys := set.Keys()
	header := make([]any, 0, len(keys)+1)
	header = append(header, series.ElapsedColumn)
	for _, key := range keys {
		header = append(header, key.String())
	}

	elapsed := set.Elapsed()
	columns := make([][]float64, len(keys))
	for idx, key := range keys {
		columns[idx], _ = set.Values(key)
	}

	rows := make([][]any, 0, len(elapsed)+1)
	rows = append(rows, header)
	for row := range elapsed {
		line := make([]any, 0, len(keys)+1)
		line = append(line, elapsed[row])
		for idx := range keys {
			line = append(line, columns[idx][row])
		}
		rows = append(rows, line)
	}
	if err := writeRows(file, sheet, rows); err != nil {
		return err
	}

	if len(elapsed) > 0 {
		last, _ := excelize.CoordinatesToCellName(1, len(elapsed)+1)
		if err := file.SetCellStyle(sheet, "A2", last, elapsedStyle); err != nil {
			return fmt.Errorf("style elapsed column: %w", err)
		}
	}
	return file.SetColWidth(sheet, "A", "A", 14)
}

// writeGraphSheet adds a line chart of every key column against elapsed time.
// Params: file workbook; sheet graph sheet name; dataSheet source sheet; device chart title; set frozen series.
// Returns: error on chart creation.
func writeGraphSheet(file *excelize.File, sheet, dataSheet, device string, set *series.SeriesSet) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	lastRow := set.Len() + 1
	ref := quoteSheet(dataSheet)
	chartSeries := make([]excelize.ChartSeries, 0, len(set.Keys()))
	for idx := range set.Keys() {
		column, err := excelize.ColumnNumberToName(idx + 2)
		if err != nil {
			return err
		}
		chartSeries = append(chartSeries, excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", ref, column),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", ref, lastRow),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", ref, column, column, lastRow),
		})
	}

	chart := &excelize.Chart{
		Type:   excelize.Line,
		Series: chartSeries,
		Title:  []excelize.RichTextRun{{Text: device + " Route Convergence"}},
		XAxis: excelize.ChartAxis{
			Title: []excelize.RichTextRun{{Text: "Elapsed Time (seconds)"}},
		},
		YAxis: excelize.ChartAxis{
			Title: []excelize.RichTextRun{{Text: "Route Count"}},
		},
		Legend:    excelize.ChartLegend{Position: "bottom"},
		Dimension: excelize.ChartDimension{Width: chartWidth, Height: chartHeight},
	}
	if err := file.AddChart(sheet, "B2", chart); err != nil {
		return fmt.Errorf("add chart to %s: %w", sheet, err)
	}
	return nil
}

// writeConvergenceSheet writes one row per finding.
// Params: file workbook; sheet target name; rep report with findings.
// Returns: error on sheet or cell write.
func writeConvergenceSheet(file *excelize.File, sheet string, rep Report) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	rows := [][]any{{
		"Device", "Family", "Direction", "Start Threshold", "End Threshold",
		"Start Time", "End Time", "Convergence (seconds)", "Routes per Second", "Result",
	}}
	for _, finding := range rep.Findings {
		row := []any{
			finding.Device,
			finding.Family,
			string(finding.Threshold.Direction()),
			finding.Threshold.Start,
			finding.Threshold.End,
		}
		if finding.Found() {
			row = append(row,
				finding.Result.StartTime,
				finding.Result.EndTime,
				finding.Result.Elapsed,
				finding.Result.Rate,
				"ok",
			)
		} else {
			row = append(row, "", "", "", "", finding.Err.Error())
		}
		rows = append(rows, row)
	}
	return writeRows(file, sheet, rows)
}

// writeRows writes rows starting at A1.
// Params: file workbook; sheet target name; rows cell values.
// Returns: error on cell write.
func writeRows(file *excelize.File, sheet string, rows [][]any) error {
	for idx, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			return err
		}
		values := row
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// quoteSheet quotes a sheet name for formula references.
// Params: name sheet name.
// Returns: 'name' with embedded quotes doubled.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// sheetNames hands out valid, unique worksheet names.
type sheetNames struct {
	used map[string]struct{}
}

func newSheetNames() *sheetNames {
	return &sheetNames{used: make(map[string]struct{})}
}

// take sanitizes name, trims it to the sheet name limit and makes it unique.
// Params: name wanted sheet name.
// Returns: usable sheet name.
func (n *sheetNames) take(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	clean = strings.Trim(clean, "'")
	if clean == "" {
		clean = "Sheet"
	}

	candidate := truncateRunes(clean, maxSheetName)
	for attempt := 2; ; attempt++ {
		if _, taken := n.used[strings.ToLower(candidate)]; !taken {
			break
		}
		suffix := "~" + strconv.Itoa(attempt)
		candidate = truncateRunes(clean, maxSheetName-len(suffix)) + suffix
	}
	n.used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

// truncateRunes keeps at most limit runes of value.
// Params: value input; limit rune count.
// Returns: truncated value.
func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
