package xlsx

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
	FeatureSheet = "Linguistic Features"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var resultHeader = []any{"#", "File", "Prediction", "Positive", "Confidence", "Model", "Status", "Error"}

// Options controls which columns mirror the presentation flags.
type Options struct {
	ShowConfidence bool
}

// WriteReport renders a settled batch as a workbook with a results sheet,
// a summary sheet and, when any result carries them, linguistic features.
func WriteReport(w io.Writer, snapshot domain.BatchSnapshot, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DCE6F1"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeResults(f, snapshot.Results, opts, headerStyle); err != nil {
		return err
	}
	if err := writeSummary(f, snapshot, headerStyle); err != nil {
		return err
	}
	if err := writeFeatures(f, snapshot.Results, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeResults(f *excelize.File, results []domain.Result, opts Options, headerStyle int) error {
	if err := setRow(f, ResultsSheet, 1, resultHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(ResultsSheet, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range results {
		row := []any{i + 1, r.Filename, r.PredictionLabel, yesNo(r.IsPositive), "", r.ModelUsed, "ok", ""}
		if opts.ShowConfidence && r.Confidence != nil {
			row[4] = *r.Confidence
		}
		if r.Failed {
			row[2], row[3] = "", ""
			row[6], row[7] = "failed", r.FailureMessage
		}
		if err := setRow(f, ResultsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(ResultsSheet, "B", "B", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(ResultsSheet, "F", "F", 30); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, snapshot domain.BatchSnapshot, headerStyle int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]any{
		{"Field", "Value"},
		{"Batch", snapshot.BatchID},
		{"Model", snapshot.Model},
		{"Total", snapshot.Summary.Total},
		{"Positive", snapshot.Summary.Positive},
		{"Negative", snapshot.Summary.Negative},
		{"Failed", snapshot.Summary.Failed},
	}
	for i, row := range rows {
		if err := setRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return nil
}

func writeFeatures(f *excelize.File, results []domain.Result, headerStyle int) error {
	names := featureNames(results)
	if len(names) == 0 {
		return nil
	}
	if _, err := f.NewSheet(FeatureSheet); err != nil {
		return fmt.Errorf("create feature sheet: %w", err)
	}

	header := make([]any, 0, len(names)+1)
	header = append(header, "File")
	for _, name := range names {
		header = append(header, name)
	}
	if err := setRow(f, FeatureSheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(FeatureSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := 2
	for _, r := range results {
		if len(r.LinguisticFeatures) == 0 {
			continue
		}
		values := make([]any, 0, len(names)+1)
		values = append(values, r.Filename)
		for _, name := range names {
			if v, ok := r.LinguisticFeatures[name]; ok {
				values = append(values, v)
			} else {
				values = append(values, nil)
			}
		}
		if err := setRow(f, FeatureSheet, row, values); err != nil {
			return err
		}
		row++
	}
	return nil
}

func featureNames(results []domain.Result) []string {
	seen := make(map[string]struct{})
	for _, r := range results {
		for name := range r.LinguisticFeatures {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
