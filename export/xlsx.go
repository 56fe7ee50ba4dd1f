package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/lzyq-hntvu/browsecomp-V3/question"
)

const (
	questionsSheet = "Questions"
	stepsSheet     = "Steps"
)

var (
	questionHeader = []any{"Question ID", "Question", "Answer", "Answer Entity", "Template", "Difficulty", "Constraints", "Confidence", "Generated At"}
	stepHeader     = []any{"Question ID", "Step", "Action", "Target Node", "Edge Type", "Condition", "Results", "Description"}
)

// WriteXLSX writes qs to a workbook with one row per question on the
// Questions sheet and one row per reasoning step on the Steps sheet.
func WriteXLSX(path string, qs []*question.Question) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", questionsSheet); err != nil {
		return fmt.Errorf("export.WriteXLSX: %w", err)
	}
	if _, err := f.NewSheet(stepsSheet); err != nil {
		return fmt.Errorf("export.WriteXLSX: %w", err)
	}

	if err := setRow(f, questionsSheet, 1, questionHeader); err != nil {
		return err
	}
	if err := setRow(f, stepsSheet, 1, stepHeader); err != nil {
		return err
	}

	stepRow := 2
	for i, q := range qs {
		n := 0
		if q.Constraints != nil {
			n = len(q.Constraints.Constraints)
		}
		row := []any{q.ID, q.Text, q.Answer.Text, q.Answer.EntityID, q.TemplateID,
			string(q.Difficulty), n, q.Confidence, q.GeneratedAt.Format("2006-01-02 15:04:05")}
		if err := setRow(f, questionsSheet, i+2, row); err != nil {
			return err
		}

		if q.Chain == nil {
			continue
		}
		for _, s := range q.Chain.Steps {
			row := []any{q.ID, s.StepID, string(s.Action), string(s.TargetNode), string(s.EdgeType),
				s.Condition.String(), s.ResultCount, s.Description}
			if err := setRow(f, stepsSheet, stepRow, row); err != nil {
				return err
			}
			stepRow++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export.WriteXLSX: saving %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("export.WriteXLSX: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export.WriteXLSX: %s row %d: %w", sheet, row, err)
	}
	return nil
}
