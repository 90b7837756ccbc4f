package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/razeghi71/streamagg/record"
)

// Load reads a file and returns its records.
func Load(filename string) ([]*record.Record, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return loadCSV(filename)
	case ".json":
		return loadJSON(filename)
	case ".jsonl", ".ndjson":
		return loadJSONL(filename)
	case ".avro":
		return loadAvro(filename)
	case ".parquet":
		return loadParquet(filename)
	default:
		return nil, fmt.Errorf("unsupported file format %q (supported: .csv, .json, .jsonl, .avro, .parquet)", ext)
	}
}

// Supported reports whether Load understands the file's extension.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".json", ".jsonl", ".ndjson", ".avro", ".parquet":
		return true
	}
	return false
}

func loadCSV(filename string) ([]*record.Record, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()
	return readCSV(f, filename)
}

func readCSV(r io.Reader, filename string) ([]*record.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read CSV header from %s: %w", filename, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	var out []*record.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV row: %w", err)
		}

		rec := record.New()
		for i, col := range columns {
			if i >= len(row) {
				break
			}
			// empty cells leave the field absent
			rec.Set(col, parseValue(strings.TrimSpace(row[i])))
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseValue infers the type of a CSV cell value. Cells holding a JSON array
// ("[\"Drama\", \"Crime\"]") decode to arrays.
func parseValue(s string) record.Value {
	if s == "" {
		return record.Missing()
	}
	if strings.EqualFold(s, "null") {
		return record.Null()
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return record.IntVal(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return record.FloatVal(v)
	}

	lower := strings.ToLower(s)
	if lower == "true" {
		return record.BoolVal(true)
	}
	if lower == "false" {
		return record.BoolVal(false)
	}

	if strings.HasPrefix(s, "[") {
		if v, err := record.ParseJSON([]byte(s)); err == nil && v.Type == record.TypeArray {
			return v
		}
	}
	return record.StrVal(s)
}

func loadJSON(filename string) ([]*record.Record, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}
	v, err := record.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse JSON from %s: %w", filename, err)
	}
	switch v.Type {
	case record.TypeRecord:
		return []*record.Record{v.Rec}, nil
	case record.TypeArray:
		out := make([]*record.Record, 0, len(v.Arr))
		for i, e := range v.Arr {
			if e.Type != record.TypeRecord {
				return nil, fmt.Errorf("%s: element %d is %s, expected an object", filename, i, e.Type)
			}
			out = append(out, e.Rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot parse JSON from %s: expected an array of objects, got %s", filename, v.Type)
	}
}

func loadJSONL(filename string) ([]*record.Record, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []*record.Record
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := record.ParseJSONRecord([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", lineNum, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filename, err)
	}
	return out, nil
}
