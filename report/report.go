// Package report renders pipeline results as text tables, JSON, JSON lines
// or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/razeghi71/streamagg/record"
)

type Format string

const (
	Table Format = "table"
	JSON  Format = "json"
	JSONL Format = "jsonl"
	YAML  Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Table, JSON, JSONL, YAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (supported: table, json, jsonl, yaml)", s)
}

// Write renders recs to w.
func Write(w io.Writer, format Format, recs []*record.Record) error {
	switch format {
	case Table:
		return writeTable(w, recs)
	case JSON:
		return writeJSON(w, recs)
	case JSONL:
		return writeJSONL(w, recs)
	case YAML:
		return writeYAML(w, seqNode(recs))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Envelope wraps the results of one report run.
type Envelope struct {
	ID          ulid.ULID        `json:"id"`
	Report      string           `json:"report"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Count       int              `json:"count"`
	Results     []*record.Record `json:"results"`
}

// NewEnvelope stamps results with a fresh ULID and the current time.
func NewEnvelope(name, fingerprint string, results []*record.Record) *Envelope {
	now := time.Now().UTC()
	return &Envelope{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Report:      name,
		Fingerprint: fingerprint,
		GeneratedAt: now,
		Count:       len(results),
		Results:     results,
	}
}

// Write renders the envelope. Table and JSONL output carry only the results.
func (e *Envelope) Write(w io.Writer, format Format) error {
	switch format {
	case JSON:
		if e.Results == nil {
			e.Results = []*record.Record{}
		}
		return writeJSON(w, e)
	case YAML:
		return writeYAML(w, e.node())
	default:
		return Write(w, format, e.Results)
	}
}

func (e *Envelope) node() *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, v *yaml.Node) {
		n.Content = append(n.Content, scalarNode("!!str", key), v)
	}
	add("id", scalarNode("!!str", e.ID.String()))
	add("report", scalarNode("!!str", e.Report))
	if e.Fingerprint != "" {
		add("fingerprint", scalarNode("!!str", e.Fingerprint))
	}
	add("generated_at", scalarNode("!!timestamp", e.GeneratedAt.Format(time.RFC3339Nano)))
	add("count", scalarNode("!!int", fmt.Sprint(e.Count)))
	add("results", seqNode(e.Results))
	return n
}

func writeJSON(w io.Writer, v any) error {
	if recs, ok := v.([]*record.Record); ok && recs == nil {
		v = []*record.Record{}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode JSON: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func writeJSONL(w io.Writer, recs []*record.Record) error {
	for _, r := range recs {
		data, err := r.MarshalJSON()
		if err != nil {
			return fmt.Errorf("cannot encode JSON: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func writeYAML(w io.Writer, n *yaml.Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("cannot encode YAML: %w", err)
	}
	return enc.Close()
}

func seqNode(recs []*record.Record) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	if len(recs) == 0 {
		n.Style = yaml.FlowStyle
	}
	for _, r := range recs {
		n.Content = append(n.Content, recordNode(r))
	}
	return n
}

func recordNode(r *record.Record) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range r.Keys() {
		n.Content = append(n.Content, scalarNode("!!str", k), valueNode(r.Get(k)))
	}
	return n
}

func valueNode(v record.Value) *yaml.Node {
	switch v.Type {
	case record.TypeMissing, record.TypeNull:
		return scalarNode("!!null", "null")
	case record.TypeBool:
		return scalarNode("!!bool", v.AsString())
	case record.TypeInt:
		return scalarNode("!!int", v.AsString())
	case record.TypeFloat:
		switch {
		case math.IsNaN(v.Float):
			return scalarNode("!!float", ".nan")
		case math.IsInf(v.Float, 1):
			return scalarNode("!!float", ".inf")
		case math.IsInf(v.Float, -1):
			return scalarNode("!!float", "-.inf")
		}
		s := v.AsString()
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return scalarNode("!!float", s)
	case record.TypeArray:
		n := &yaml.Node{Kind: yaml.SequenceNode}
		if len(v.Arr) == 0 {
			n.Style = yaml.FlowStyle
		}
		for _, e := range v.Arr {
			n.Content = append(n.Content, valueNode(e))
		}
		return n
	case record.TypeRecord:
		return recordNode(v.Rec)
	default:
		return scalarNode("!!str", v.AsString())
	}
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// writeTable prints an aligned text table. Columns are the union of all
// record keys in first-seen order.
func writeTable(w io.Writer, recs []*record.Record) error {
	var columns []string
	seen := make(map[string]bool)
	for _, r := range recs {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	if len(columns) == 0 {
		_, err := fmt.Fprintln(w, "(no results)")
		return err
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = utf8.RuneCountInString(col)
	}

	cells := make([][]string, len(recs))
	for i, r := range recs {
		cells[i] = make([]string, len(columns))
		for j, col := range columns {
			cells[i][j] = r.Get(col).AsString()
			widths[j] = max(widths[j], utf8.RuneCountInString(cells[i][j]))
		}
	}

	var b strings.Builder
	writeRow := func(parts []string, sep string) {
		for i, p := range parts {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(padRight(p, widths[i]))
		}
		b.WriteByte('\n')
	}

	writeRow(columns, " | ")
	sep := make([]string, len(columns))
	for i := range columns {
		sep[i] = strings.Repeat("-", widths[i])
	}
	writeRow(sep, "-+-")
	for _, row := range cells {
		writeRow(row, " | ")
	}
	fmt.Fprintf(&b, "(%d rows)\n", len(recs))

	_, err := io.WriteString(w, b.String())
	return err
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
