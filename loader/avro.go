package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	goavro "github.com/linkedin/goavro/v2"

	"github.com/razeghi71/streamagg/content"
	"github.com/razeghi71/streamagg/record"
)

// ContentAvroSchema is the OCF schema WriteAvro uses for unified content.
const ContentAvroSchema = `{
  "type": "record",
  "name": "Content",
  "namespace": "streamagg",
  "fields": [
    {"name": "content_id", "type": "string"},
    {"name": "title", "type": "string"},
    {"name": "genre", "type": {"type": "array", "items": "string"}},
    {"name": "content_type", "type": "string"},
    {"name": "rating", "type": "double"},
    {"name": "views_count", "type": "long"},
    {"name": "production_budget", "type": "long"},
    {"name": "release_year", "type": ["null", "long"], "default": null},
    {"name": "duration_minutes", "type": ["null", "long"], "default": null},
    {"name": "seasons", "type": ["null", "long"], "default": null},
    {"name": "episodes_per_season", "type": ["null", {"type": "array", "items": "long"}], "default": null},
    {"name": "avg_episode_duration", "type": ["null", "long"], "default": null},
    {"name": "total_episodes", "type": ["null", "long"], "default": null},
    {"name": "total_runtime_minutes", "type": ["null", "long"], "default": null}
  ]
}`

func loadAvro(filename string) ([]*record.Record, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()
	return ReadAvro(f)
}

// ReadAvro decodes an Avro OCF stream. Fields keep the schema's order; null
// fields are left absent.
func ReadAvro(r io.Reader) ([]*record.Record, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read Avro OCF: %w", err)
	}

	var schemaDef struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schemaDef); err != nil {
		return nil, fmt.Errorf("cannot parse Avro schema: %w", err)
	}
	columns := make([]string, len(schemaDef.Fields))
	for i, field := range schemaDef.Fields {
		columns[i] = field.Name
	}

	var out []*record.Record
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, fmt.Errorf("error reading Avro record: %w", err)
		}
		m, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected Avro record type %T", datum)
		}
		rec := record.New()
		for _, col := range columns {
			if v, exists := m[col]; exists && v != nil {
				rec.Set(col, avroValue(v))
			}
		}
		out = append(out, rec)
	}
	if err := ocfr.Err(); err != nil {
		return nil, fmt.Errorf("error reading Avro file: %w", err)
	}
	return out, nil
}

// avroUnionBranches are the keys goavro uses when it decodes a union value
// as {"branch": value}.
var avroUnionBranches = map[string]bool{
	"null": true, "boolean": true, "int": true, "long": true, "float": true,
	"double": true, "bytes": true, "string": true, "array": true, "map": true,
}

func avroValue(v any) record.Value {
	switch val := v.(type) {
	case nil:
		return record.Null()
	case int32:
		return record.IntVal(int64(val))
	case int64:
		return record.IntVal(val)
	case float32:
		return record.FloatVal(float64(val))
	case float64:
		return record.FloatVal(val)
	case string:
		return record.StrVal(val)
	case bool:
		return record.BoolVal(val)
	case []byte:
		return record.StrVal(string(val))
	case []any:
		vs := make([]record.Value, len(val))
		for i, e := range val {
			vs[i] = avroValue(e)
		}
		return record.ArrayVal(vs)
	case map[string]any:
		if len(val) == 1 {
			for k, inner := range val {
				if avroUnionBranches[k] {
					return avroValue(inner)
				}
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := record.New()
		for _, k := range keys {
			r.Set(k, avroValue(val[k]))
		}
		return record.RecordVal(r)
	default:
		return record.StrVal(fmt.Sprintf("%v", val))
	}
}

// WriteAvro encodes content as an Avro OCF stream using ContentAvroSchema.
func WriteAvro(w io.Writer, items []*content.Content) error {
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{W: w, Schema: ContentAvroSchema})
	if err != nil {
		return fmt.Errorf("cannot create Avro writer: %w", err)
	}
	batch := make([]any, 0, len(items))
	for _, c := range items {
		batch = append(batch, avroDatum(c))
	}
	if err := ocfw.Append(batch); err != nil {
		return fmt.Errorf("cannot write Avro records: %w", err)
	}
	return nil
}

func avroDatum(c *content.Content) map[string]any {
	long := func(n int64) any { return goavro.Union("long", n) }
	genre := make([]any, len(c.Genre))
	for i, g := range c.Genre {
		genre[i] = g
	}
	m := map[string]any{
		"content_id":            c.ID,
		"title":                 c.Title,
		"genre":                 genre,
		"content_type":          string(c.Type),
		"rating":                c.Rating,
		"views_count":           c.Views,
		"production_budget":     c.Budget,
		"release_year":          nil,
		"duration_minutes":      nil,
		"seasons":               nil,
		"episodes_per_season":   nil,
		"avg_episode_duration":  nil,
		"total_episodes":        nil,
		"total_runtime_minutes": nil,
	}
	if c.ReleaseYear != 0 {
		m["release_year"] = long(int64(c.ReleaseYear))
	}
	if c.MovieInfo != nil {
		m["duration_minutes"] = long(c.MovieInfo.DurationMinutes)
	}
	if s := c.SeriesInfo; s != nil {
		eps := make([]any, len(s.EpisodesPerSeason))
		for i, n := range s.EpisodesPerSeason {
			eps[i] = n
		}
		m["seasons"] = long(s.Seasons)
		m["episodes_per_season"] = goavro.Union("array", eps)
		m["avg_episode_duration"] = long(s.AvgEpisodeDuration)
		m["total_episodes"] = long(s.TotalEpisodes)
		m["total_runtime_minutes"] = long(s.TotalRuntimeMinutes)
	}
	return m
}
