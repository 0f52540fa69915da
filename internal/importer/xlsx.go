package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"pingmon/internal/storage/models"
)

// DefaultSheet is the worksheet created for a new workbook.
const DefaultSheet = "Devices"

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sheetRows(f, sheet)
}

func decodeXLSX(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse workbook: %w", err)
	}
	defer f.Close()
	return sheetRows(f, sheet)
}

func sheetRows(f *excelize.File, sheet string) ([][]string, error) {
	name, err := sheetName(f, sheet)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	return rows, nil
}

// sheetName resolves the configured sheet, defaulting to the active one.
func sheetName(f *excelize.File, sheet string) (string, error) {
	if sheet != "" {
		idx, err := f.GetSheetIndex(sheet)
		if err != nil || idx < 0 {
			return "", fmt.Errorf("sheet %q not found", sheet)
		}
		return sheet, nil
	}
	name := f.GetSheetName(f.GetActiveSheetIndex())
	if name == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return "", fmt.Errorf("workbook has no sheets")
		}
		name = list[0]
	}
	return name, nil
}

func updateXLSX(path, sheet, oldAddress string, rec models.Record) error {
	f, err := excelize.OpenFile(path)
	switch {
	case err == nil:
	case notExist(err):
		if f, err = newWorkbook(sheet); err != nil {
			return err
		}
	default:
		return err
	}
	defer f.Close()

	name, err := sheetName(f, sheet)
	if err != nil {
		return err
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		if err := f.SetSheetRow(name, "A1", toRow(Headers)); err != nil {
			return err
		}
		rows = [][]string{Headers}
	}

	m := mapHeader(rows[0])
	idx := findRow(rows, m, oldAddress)
	var values []string
	if idx >= 0 {
		values = m.values(rec, rows[idx])
	} else {
		idx = len(rows)
		values = m.values(rec, nil)
	}

	cell, err := excelize.CoordinatesToCellName(1, idx+1)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(name, cell, toRow(values)); err != nil {
		return fmt.Errorf("write row %d: %w", idx+1, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func newWorkbook(sheet string) (*excelize.File, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func toRow(values []string) *[]interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return &row
}
