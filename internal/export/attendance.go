// Package export produces downloadable attendance documents.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/stemsi/classbook/internal/model"
)

// ContentTypeXLSX is the MIME type of the attendance workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const emptySheet = "Attendance"

var header = []interface{}{"#", "Name", "Phone", "Insurance", "Signed up at"}

// WriteAttendance writes a workbook with one worksheet per occurrence date.
// Sheets are named after the date. With no sheets the workbook holds a single
// empty "Attendance" sheet.
func WriteAttendance(w io.Writer, title string, sheets []model.AttendanceSheet) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	first := f.GetSheetList()[0]
	if len(sheets) == 0 {
		if err := f.SetSheetName(first, emptySheet); err != nil {
			return err
		}
		if err := fillSheet(f, emptySheet, title, bold, nil); err != nil {
			return err
		}
	}

	for i, s := range sheets {
		name := s.OccurrenceDate
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := fillSheet(f, name, title, bold, s.Enrollments); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func fillSheet(f *excelize.File, sheet, title string, style int, rows []model.Enrollment) error {
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{title, sheet}); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 2, style); err != nil {
		return err
	}

	for i, e := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		row := []interface{}{i + 1, e.Name, e.Phone, e.Insurance, e.CreatedAt.UTC().Format("2006-01-02 15:04")}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}

	if err := f.SetColWidth(sheet, "B", "D", 24); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "E", "E", 18)
}
