package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/markdave123-py/prescodata/internal/core"
	"github.com/markdave123-py/prescodata/internal/models"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrEmptyFile    = errors.New("file is empty or has no data rows")
	ErrUnsupported  = errors.New("unsupported file type")
	ErrNoSuchSheet  = errors.New("sheet index out of range")
)

// Sheet is a parsed worksheet: cleaned headers, typed rows and inferred field types.
type Sheet struct {
	SheetName string
	Headers   []string
	Rows      []models.Row
	Fields    []models.FieldDef
}

// SpreadsheetExtractor reads .xlsx and .xls workbooks.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor {
	return &SpreadsheetExtractor{}
}

// Extract parses the sheet at sheetIndex of the workbook at path. The file is
// removed afterwards whether parsing succeeds or not.
func (e *SpreadsheetExtractor) Extract(ctx context.Context, path string, sheetIndex int) (*Sheet, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	defer os.Remove(path)

	if info.Size() == 0 {
		return nil, ErrEmptyFile
	}

	var (
		name string
		grid [][]any
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		name, grid, err = readXLSX(path, sheetIndex)
	case ".xls":
		name, grid, err = readXLS(path, sheetIndex)
	default:
		return nil, fmt.Errorf("%q: %w", filepath.Ext(path), ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buildSheet(name, grid)
}

// buildSheet turns a raw grid into a Sheet. The first non-blank row holds the headers.
func buildSheet(name string, grid [][]any) (*Sheet, error) {
	headerAt := -1
	for i, row := range grid {
		if !blankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}

	width := 0
	for _, row := range grid[headerAt:] {
		width = max(width, trimmedLen(row))
	}
	headers := cleanHeaders(grid[headerAt], width)
	sheet := &Sheet{SheetName: CleanHeader(name), Headers: headers}
	for _, raw := range grid[headerAt+1:] {
		if blankRow(raw) {
			continue
		}
		row := make(models.Row, len(headers))
		for col, h := range headers {
			if col < len(raw) {
				row[h] = raw[col]
			} else {
				row[h] = nil
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if len(sheet.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	sheet.Fields = InferFields(headers, sheet.Rows)
	return sheet, nil
}

var nonIdent = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// CleanHeader trims s, replaces every character outside [A-Za-z0-9_] with an
// underscore and lowercases the result.
func CleanHeader(s string) string {
	return strings.ToLower(nonIdent.ReplaceAllString(strings.TrimSpace(s), "_"))
}

// cleanHeaders names blank columns column_<n> and suffixes duplicates so every
// row carries exactly one key per column.
func cleanHeaders(raw []any, width int) []string {
	out := make([]string, width)
	seen := make(map[string]bool, width)
	for i := 0; i < width; i++ {
		var h string
		if i < len(raw) {
			h = CleanHeader(core.FormatValue(raw[i]))
		}
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		if seen[h] {
			base := h
			for n := 2; seen[h]; n++ {
				h = base + "_" + strconv.Itoa(n)
			}
		}
		seen[h] = true
		out[i] = h
	}
	return out
}

// InferFields types each column from its non-null values.
func InferFields(headers []string, rows []models.Row) []models.FieldDef {
	fields := make([]models.FieldDef, len(headers))
	for i, h := range headers {
		var t models.FieldType
		for _, row := range rows {
			vt, ok := valueType(row[h])
			if !ok {
				continue
			}
			if t == "" {
				t = vt
			} else if t != vt {
				t = models.FieldMixed
				break
			}
		}
		if t == "" {
			t = models.FieldString
		}
		fields[i] = models.FieldDef{Name: h, Type: t}
	}
	return fields
}

func valueType(v any) (models.FieldType, bool) {
	switch v.(type) {
	case nil:
		return "", false
	case string:
		return models.FieldString, true
	case bool:
		return models.FieldBool, true
	case int64, float64:
		return models.FieldNumber, true
	}
	return models.FieldMixed, true
}

func trimmedLen(row []any) int {
	n := len(row)
	for n > 0 && isBlank(row[n-1]) {
		n--
	}
	return n
}

func blankRow(row []any) bool {
	for _, v := range row {
		if !isBlank(v) {
			return false
		}
	}
	return true
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func readXLSX(path string, sheetIndex int) (string, [][]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if sheetIndex < 0 || sheetIndex >= len(sheets) {
		return "", nil, ErrNoSuchSheet
	}
	name := sheets[sheetIndex]

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, fmt.Errorf("read sheet %q: %w", name, err)
	}

	grid := make([][]any, len(rows))
	for r, cells := range rows {
		out := make([]any, len(cells))
		for c, text := range cells {
			if text == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return "", nil, err
			}
			typ, err := f.GetCellType(name, cell)
			if err != nil {
				return "", nil, fmt.Errorf("cell %s: %w", cell, err)
			}
			out[c] = xlsxValue(typ, text)
		}
		grid[r] = out
	}
	return name, grid, nil
}

func xlsxValue(typ excelize.CellType, text string) any {
	switch typ {
	case excelize.CellTypeBool:
		switch strings.ToUpper(text) {
		case "1", "TRUE":
			return true
		case "0", "FALSE":
			return false
		}
		return text
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate, excelize.CellTypeFormula:
		if n, ok := core.ParseNumber(text); ok {
			return normalizeNumber(n)
		}
		return text
	default:
		return text
	}
}

// xlsMaxCols is the column limit of the BIFF8 format.
const xlsMaxCols = 256

func readXLS(path string, sheetIndex int) (string, [][]any, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer fh.Close()

	wb, err := xls.OpenReader(fh, "utf-8")
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	if wb == nil {
		return "", nil, fmt.Errorf("open workbook: %w", ErrUnsupported)
	}

	if sheetIndex < 0 || sheetIndex >= wb.NumSheets() {
		return "", nil, ErrNoSuchSheet
	}
	sheet := wb.GetSheet(sheetIndex)
	if sheet == nil {
		return "", nil, ErrNoSuchSheet
	}

	grid := make([][]any, 0, int(sheet.MaxRow)+1)
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := xlsRow(sheet, r)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		// Rows without a ROW record report no bounds.
		last := row.LastCol()
		if last <= 0 {
			last = xlsMaxCols
		}
		out := make([]any, last)
		for c := row.FirstCol(); c < last; c++ {
			out[c] = xlsValue(row.Col(c))
		}
		grid = append(grid, out)
	}
	return sheet.Name, grid, nil
}

// xlsRow returns row i of sheet, or nil when the sheet has no such row.
// WorkSheet.Row dereferences missing rows.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// xlsValue types a cell of a legacy workbook, which only exposes formatted text.
// Numeric text becomes a number unless a leading zero marks it as an identifier.
func xlsValue(text string) any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	switch strings.ToUpper(text) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if len(text) > 1 && text[0] == '0' && text[1] != '.' {
		return text
	}
	if n, ok := core.ParseNumber(text); ok {
		return normalizeNumber(n)
	}
	return text
}

// normalizeNumber stores integral floats as int64.
func normalizeNumber(n any) any {
	if f, ok := n.(float64); ok {
		if i, ok := core.AsInt64(f); ok && f >= -(1<<53) && f <= 1<<53 {
			return i
		}
	}
	return n
}
