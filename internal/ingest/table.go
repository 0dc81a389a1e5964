package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Source formats.
const (
	FormatCSV  = "csv"
	FormatXLS  = "xls"
	FormatXLSX = "xlsx"
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
	// ole2Magic starts every Compound File: Excel 97-2003 workbooks and
	// password protected .xlsx files.
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// table is a header row plus data rows, all cells as strings.
type table struct {
	format string
	header []string
	rows   [][]string
}

// readTable detects the format from the file extension and decodes the
// first sheet (or the whole CSV) into a table.
func readTable(f File) (table, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	var format string
	switch ext {
	case ".csv":
		format = FormatCSV
	case ".xls":
		format = FormatXLS
	case ".xlsx":
		format = FormatXLSX
	default:
		return table{}, unsupportedTypeError(ext)
	}

	if f.Data == nil {
		return table{}, emptyFileError()
	}
	data, err := io.ReadAll(f.Data)
	if err != nil {
		return table{}, err
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0 {
		return table{}, emptyFileError()
	}

	if format == FormatXLS && bytes.HasPrefix(data, ole2Magic) {
		return table{}, legacyWorkbookError()
	}

	var rows [][]string
	if format == FormatCSV {
		rows, err = readCSV(data)
	} else {
		rows, err = readWorkbook(data)
	}
	if err != nil {
		return table{}, err
	}

	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return table{}, emptyFileError()
	}
	return table{format: format, header: rows[0], rows: rows[1:]}, nil
}

// readCSV parses UTF-8 text, falling back to Windows-1252 for legacy Excel
// exports. The delimiter is taken from the header line.
func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, err
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// detectDelimiter picks ';' when the header line has more semicolons than
// commas (spreadsheet exports in es-AR locales), ',' otherwise.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

// readWorkbook reads the first sheet of an Office Open XML workbook, which
// includes .xls files saved in that format. Cells are read raw so numeric
// values are not subject to display formatting.
func readWorkbook(data []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, corruptWorkbookError()
	}
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		return nil, emptyFileError()
	}
	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, corruptWorkbookError()
	}
	return rows, nil
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
