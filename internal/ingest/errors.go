package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for ingestion failures. Use errors.Is against these; the
// message shown to the user comes from (*Error).Error.
var (
	ErrEmptyFile       = errors.New("empty file")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrCorruptWorkbook = errors.New("corrupt workbook")
	ErrLegacyWorkbook  = errors.New("legacy xls workbook")
	ErrMissingColumns  = errors.New("missing required columns")
	ErrNoValidRecords  = errors.New("no valid records")
)

// Error is a user-facing ingestion failure.
type Error struct {
	Kind    error
	Missing []string
	msg     string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.Kind }

func emptyFileError() *Error {
	return &Error{Kind: ErrEmptyFile, msg: "The file is empty"}
}

func unsupportedTypeError(ext string) *Error {
	if ext == "" {
		ext = "(none)"
	}
	return &Error{
		Kind: ErrUnsupportedType,
		msg:  fmt.Sprintf("Unsupported file type %s. Upload a .csv, .xls or .xlsx file", ext),
	}
}

func corruptWorkbookError() *Error {
	return &Error{
		Kind: ErrCorruptWorkbook,
		msg:  "The workbook could not be read. It may be damaged or password protected",
	}
}

func legacyWorkbookError() *Error {
	return &Error{
		Kind: ErrLegacyWorkbook,
		msg:  "Excel 97-2003 workbooks are not supported. Save the file as .xlsx or .csv and upload it again",
	}
}

func missingColumnsError(missing []string) *Error {
	return &Error{
		Kind:    ErrMissingColumns,
		Missing: missing,
		msg:     "Missing required columns: " + strings.Join(missing, ", "),
	}
}

func noValidRecordsError() *Error {
	return &Error{
		Kind: ErrNoValidRecords,
		msg:  "No valid records found in the file",
	}
}
