package transfer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"confdb/internal/core"
)

const xlsxSheet = "Devices"

// ExportXLSX writes the project's current devices to w as an xlsx workbook
// with a single sheet, columns in KeyMap order.
func ExportXLSX(svc *core.Service, projectID string, w io.Writer) error {
	header, rows, err := exportRows(svc, projectID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("creating worksheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default worksheet: %w", err)
	}

	if err := writeXLSXRow(f, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeXLSXRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeXLSXRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("resolving cell for row %d: %w", rowNum, err)
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
		return fmt.Errorf("writing row %d: %w", rowNum, err)
	}
	return nil
}
