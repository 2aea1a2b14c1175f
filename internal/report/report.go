// Package report exports learning-path progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/progress"
)

const (
	SummarySheet   = "Summary"
	SubtopicsSheet = "Subtopics"
)

// WriteProgress writes a workbook with a summary sheet and one row per
// subtopic marking whether it is complete in st.
func WriteProgress(w io.Writer, path curriculum.LearningPath, st progress.State, generated time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SubtopicsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summary := [][]any{
		{"Path", path.ID},
		{"Topic", path.Topic},
		{"Level", path.Level},
		{"Estimated hours", path.EstimatedHours},
		{"Subtopics", len(path.Subtopics)},
		{"Completed", len(st.Completed)},
		{"Progress (%)", st.Progress},
		{"Generated", generated.UTC().Format(time.RFC3339)},
	}
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	rows := [][]any{{"#", "Subtopic", "Completed"}}
	for i, sub := range path.Subtopics {
		done := "No"
		if st.IsCompleted(sub.Name) {
			done = "Yes"
		}
		rows = append(rows, []any{curriculum.SubtopicID(i), sub.Name, done})
	}
	if err := writeRows(f, SubtopicsSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SubtopicsSheet, "A1", "C1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for sheet, width := range map[string]float64{SummarySheet: 18, SubtopicsSheet: 40} {
		if err := f.SetColWidth(sheet, "B", "B", width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, r+1, err)
		}
	}
	return nil
}
