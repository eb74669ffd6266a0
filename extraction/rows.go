package extraction

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Row is one exported pipeline: its id plus the two JSON documents as text.
type Row struct {
	// Index is the zero-based position in the source.
	Index   int
	CaseID  string
	Content string
	Params  string
}

// Columns names the fields a row is read from.
type Columns struct {
	ID      string
	Content string
	Params  string
}

func DefaultColumns() Columns {
	return Columns{ID: "pipe_id", Content: "content", Params: "in_param"}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if strings.TrimSpace(c.ID) == "" {
		c.ID = d.ID
	}
	if strings.TrimSpace(c.Content) == "" {
		c.Content = d.Content
	}
	if strings.TrimSpace(c.Params) == "" {
		c.Params = d.Params
	}
	return c
}

// RowOptions controls LoadRows.
type RowOptions struct {
	Columns Columns

	// ArrayField names the array holding the rows when a JSON export's top level is an
	// object. Empty picks the first array-valued field.
	ArrayField string
}

// LoadRows reads rows from a .csv, .json, or .jsonl export.
func LoadRows(ctx context.Context, path string, opts RowOptions) ([]Row, error) {
	if ctx == nil {
		return nil, errors.New("LoadRows: ctx is nil")
	}
	if path == "" {
		return nil, errors.New("LoadRows: path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRows: open input: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return ReadCSVRows(f, opts.Columns)
	case ".json":
		return ReadJSONRows(ctx, f, opts)
	case ".jsonl", ".ndjson":
		return ReadJSONLRows(ctx, f, opts.Columns)
	default:
		return nil, fmt.Errorf("LoadRows: unsupported input extension %q (want .csv, .json or .jsonl)", ext)
	}
}

// ReadCSVRows reads a header-driven CSV export. A leading BOM, stray quotes, and short rows
// are tolerated; missing cells read as "".
func ReadCSVRows(r io.Reader, cols Columns) ([]Row, error) {
	cols = cols.withDefaults()

	cr := csv.NewReader(bomSkipper(r))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("ReadCSVRows: read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	for _, want := range []string{cols.Content, cols.Params} {
		if _, ok := pos[want]; !ok {
			return nil, fmt.Errorf("ReadCSVRows: header has no %q column (have %v)", want, header)
		}
	}

	cell := func(rec []string, name string) string {
		i, ok := pos[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCSVRows: read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, Row{
			Index:   len(rows),
			CaseID:  strings.TrimSpace(cell(rec, cols.ID)),
			Content: cell(rec, cols.Content),
			Params:  cell(rec, cols.Params),
		})
	}
	return rows, nil
}

// ReadJSONRows streams rows from a top-level JSON array, or from an array field of a
// top-level object. The documents may be JSON strings or embedded JSON values.
func ReadJSONRows(ctx context.Context, r io.Reader, opts RowOptions) ([]Row, error) {
	if ctx == nil {
		return nil, errors.New("ReadJSONRows: ctx is nil")
	}
	cols := opts.Columns.withDefaults()

	dec := json.NewDecoder(bufio.NewReaderSize(bomSkipper(r), 1<<20))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("ReadJSONRows: read first token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("ReadJSONRows: expected JSON array/object, got %T", tok)
	}

	var rows []Row
	switch delim {
	case '[':
		if err := readRowArray(ctx, dec, cols, &rows); err != nil {
			return nil, err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, fmt.Errorf("ReadJSONRows: %w", err)
		}
		return rows, nil
	case '{':
		found := false
		for dec.More() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("ReadJSONRows: read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("ReadJSONRows: expected string key, got %T", keyTok)
			}
			valTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("ReadJSONRows: read value for key %q: %w", key, err)
			}

			isTarget := opts.ArrayField != "" && key == opts.ArrayField
			if !isTarget && opts.ArrayField == "" && !found {
				if d, ok := valTok.(json.Delim); ok && d == '[' {
					isTarget = true
				}
			}
			if !isTarget {
				if err := skipValue(dec, valTok); err != nil {
					return nil, fmt.Errorf("ReadJSONRows: skip key %q: %w", key, err)
				}
				continue
			}

			if d, ok := valTok.(json.Delim); !ok || d != '[' {
				return nil, fmt.Errorf("ReadJSONRows: key %q was chosen as array but value isn't an array", key)
			}
			found = true
			if err := readRowArray(ctx, dec, cols, &rows); err != nil {
				return nil, err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return nil, fmt.Errorf("ReadJSONRows: %w", err)
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("ReadJSONRows: %w", err)
		}
		if !found {
			return nil, errors.New("ReadJSONRows: no rows array found in top-level object")
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("ReadJSONRows: unsupported top-level delimiter %q", delim)
	}
}

// ReadJSONLRows reads one row object per line.
func ReadJSONLRows(ctx context.Context, r io.Reader, cols Columns) ([]Row, error) {
	if ctx == nil {
		return nil, errors.New("ReadJSONLRows: ctx is nil")
	}
	cols = cols.withDefaults()
	dec := json.NewDecoder(bufio.NewReaderSize(bomSkipper(r), 1<<20))
	dec.UseNumber()

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ReadJSONLRows: decode row %d: %w", len(rows)+1, err)
		}
		row, err := decodeRow(raw, cols, len(rows))
		if err != nil {
			return nil, fmt.Errorf("ReadJSONLRows: %w", err)
		}
		rows = append(rows, row)
	}
}

func readRowArray(ctx context.Context, dec *json.Decoder, cols Columns, rows *[]Row) error {
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("ReadJSONRows: decode row element: %w", err)
		}
		row, err := decodeRow(raw, cols, len(*rows))
		if err != nil {
			return fmt.Errorf("ReadJSONRows: %w", err)
		}
		*rows = append(*rows, row)
	}
	return nil
}

func decodeRow(raw json.RawMessage, cols Columns, index int) (Row, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Row{}, fmt.Errorf("row %d is not an object: %w", index+1, err)
	}
	return Row{
		Index:   index,
		CaseID:  strings.TrimSpace(scalarString(obj[cols.ID])),
		Content: documentText(obj[cols.Content]),
		Params:  documentText(obj[cols.Params]),
	}, nil
}

// documentText returns a string value as-is and any other value as its raw JSON text.
func documentText(raw json.RawMessage) string {
	if len(raw) == 0 || isJSONNull(raw) {
		return ""
	}
	if isJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read closing %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected closing %q, got %v", want, tok)
	}
	return nil
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		return nil
	}
	switch d {
	case '{', '[':
	default:
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// bomSkipper drops a leading UTF-8 byte order mark.
func bomSkipper(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}
