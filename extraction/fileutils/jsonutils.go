package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeJSONCell unmarshals a JSON document stored in a spreadsheet cell. Exports frequently
// carry a UTF-8 BOM or padding whitespace around the document; both are dropped before decoding.
func DecodeJSONCell(cell string, v any) error {
	s := CleanJSONCell(cell)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshal cell (len=%d): %w", len(s), err)
	}
	return nil
}

// CleanJSONCell strips a leading BOM and surrounding whitespace.
func CleanJSONCell(cell string) string {
	s := strings.TrimPrefix(cell, "\ufeff")
	return strings.TrimSpace(s)
}
