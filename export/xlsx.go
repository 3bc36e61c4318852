// Package export renders generated schedule sets as spreadsheets.
//
// The workbook has one sheet of periods, one of milestone dates and one of
// the holidays consulted while computing them. A Warnings sheet is added
// only when generation reported any.
package export

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-schedules/schedule"
)

// Sheet names.
const (
	SheetPeriods    = "Periods"
	SheetMilestones = "Milestones"
	SheetHolidays   = "Holidays"
	SheetWarnings   = "Warnings"
)

// ContentType of the workbook, for HTTP responses.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type sheetSpec struct {
	name    string
	columns []any
	rows    [][]any
}

// WriteScheduleSet writes the set as an xlsx workbook.
func WriteScheduleSet(w io.Writer, set *schedule.GeneratedScheduleSet) error {
	f, err := Workbook(set)
	if err != nil {
		return err
	}
	defer f.Close()

	return errors.Wrap(f.Write(w), "write workbook")
}

// Workbook builds the in-memory workbook. The caller closes it.
func Workbook(set *schedule.GeneratedScheduleSet) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetPeriods); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "rename sheet")
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "create header style")
	}

	sheets := []sheetSpec{
		{SheetPeriods, []any{"Period", "Start", "End", "Target Date", "Schedule ID"}, periodRows(set)},
		{SheetMilestones, []any{"Period", "Milestone", "Identifier", "Index", "Date", "Target"}, milestoneRows(set)},
		{SheetHolidays, []any{"Holiday", "Date", "Observed", "Locality", "Entity"}, holidayRows(set)},
	}
	if len(set.Warnings) > 0 {
		sheets = append(sheets, sheetSpec{SheetWarnings, []any{"Code", "Milestone", "Entity Type", "Entity ID", "Message"}, warningRows(set)})
	}

	for i, sh := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(sh.name); err != nil {
				f.Close()
				return nil, errors.Wrapf(err, "create sheet %s", sh.name)
			}
		}
		if err := writeSheet(f, sh.name, header, sh.columns, sh.rows); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, columns []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &columns); err != nil {
		return errors.Wrapf(err, "write %s header", sheet)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return errors.Wrapf(err, "style %s header", sheet)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "write %s row %d", sheet, i+2)
		}
	}
	last, _ := excelize.ColumnNumberToName(len(columns))
	return f.SetColWidth(sheet, "A", last, 18)
}

func periodRows(set *schedule.GeneratedScheduleSet) [][]any {
	rows := make([][]any, 0, len(set.Schedules))
	for _, s := range set.Schedules {
		rows = append(rows, []any{s.Name, s.Date.String(), s.End.String(), s.TargetDate.String(), s.ID})
	}
	return rows
}

func milestoneRows(set *schedule.GeneratedScheduleSet) [][]any {
	var rows [][]any
	for _, s := range set.Schedules {
		for _, sd := range s.ScheduleDates {
			target := ""
			if sd.Target {
				target = "yes"
			}
			rows = append(rows, []any{s.Name, sd.MilestoneID, sd.Identifier, sd.Index, sd.Date.String(), target})
		}
	}
	return rows
}

func holidayRows(set *schedule.GeneratedScheduleSet) [][]any {
	var rows [][]any
	for _, h := range set.Holidays() {
		observed := ""
		if !h.Observed.IsZero() {
			observed = h.Observed.String()
		}
		rows = append(rows, []any{h.Name, h.Date.String(), observed, h.Locality, h.EntityID})
	}
	return rows
}

func warningRows(set *schedule.GeneratedScheduleSet) [][]any {
	rows := make([][]any, 0, len(set.Warnings))
	for _, w := range set.Warnings {
		rows = append(rows, []any{w.Code, w.MilestoneID, w.EntityType.String(), w.EntityID, w.Message})
	}
	return rows
}
