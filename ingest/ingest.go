// Package ingest converts the legacy {movies, series} export into unified
// content records.
package ingest

import (
	"errors"
	"fmt"

	"github.com/razeghi71/streamagg/content"
	"github.com/razeghi71/streamagg/record"
)

// Collection names written by an import.
const (
	ContentCollection = "content"
	MoviesCollection  = "movies"
	SeriesCollection  = "series"
)

// Result holds the converted catalog.
type Result struct {
	Movies []*content.Content
	Series []*content.Content
}

// All returns movies followed by series.
func (r *Result) All() []*content.Content {
	out := make([]*content.Content, 0, len(r.Movies)+len(r.Series))
	out = append(out, r.Movies...)
	return append(out, r.Series...)
}

// Collections returns the unified records keyed by collection: the combined
// "content" collection plus per-type "movies" and "series".
func (r *Result) Collections() map[string][]*record.Record {
	toRecords := func(cs []*content.Content) []*record.Record {
		out := make([]*record.Record, len(cs))
		for i, c := range cs {
			out[i] = c.Record()
		}
		return out
	}
	return map[string][]*record.Record{
		ContentCollection: toRecords(r.All()),
		MoviesCollection:  toRecords(r.Movies),
		SeriesCollection:  toRecords(r.Series),
	}
}

// Convert parses a legacy export. Every item is validated; if any item is
// invalid the error lists all of them and no result is returned.
func Convert(data []byte) (*Result, error) {
	doc, err := record.ParseJSONRecord(data)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	res := &Result{}
	var errs []error
	for _, section := range []struct {
		key  string
		conv func(*record.Record) (*content.Content, error)
		dst  *[]*content.Content
	}{
		{"movies", ConvertMovie, &res.Movies},
		{"series", ConvertSeries, &res.Series},
	} {
		v := doc.Get(section.key)
		if v.IsNullish() {
			continue
		}
		if v.Type != record.TypeArray {
			return nil, fmt.Errorf("ingest: %q must be a list, got %s", section.key, v.Type)
		}
		for i, item := range v.Arr {
			if item.Type != record.TypeRecord {
				errs = append(errs, fmt.Errorf("%s[%d]: expected an object, got %s", section.key, i, item.Type))
				continue
			}
			c, err := section.conv(item.Rec)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", section.key, i, err))
				continue
			}
			*section.dst = append(*section.dst, c)
		}
	}
	if err := checkUniqueIDs(res.All()); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("ingest: %w", errors.Join(errs...))
	}
	return res, nil
}

// ConvertMovie tags a legacy movie with its content type.
func ConvertMovie(legacy *record.Record) (*content.Content, error) {
	r := legacy.Clone()
	r.Set("content_type", record.StrVal(string(content.Movie)))
	c, err := content.FromRecord(r)
	if err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// ConvertSeries derives episode totals and renames total_views to
// views_count.
func ConvertSeries(legacy *record.Record) (*content.Content, error) {
	r := legacy.Clone()
	r.Set("content_type", record.StrVal(string(content.Series)))
	if !r.Has("views_count") {
		r.Set("views_count", r.Get("total_views"))
	}
	r.Delete("total_views")

	c, err := content.FromRecord(r)
	if err != nil {
		return nil, err
	}
	seasons := c.SeriesInfo.Seasons
	c.SeriesInfo = content.NewSeriesDetails(c.SeriesInfo.EpisodesPerSeason, c.SeriesInfo.AvgEpisodeDuration)
	if seasons != 0 && seasons != c.SeriesInfo.Seasons {
		return nil, fmt.Errorf("%w %q: seasons is %d but episodes_per_season has %d entries",
			content.ErrInvalid, c.ID, seasons, c.SeriesInfo.Seasons)
	}
	return c, c.Validate()
}

func checkUniqueIDs(cs []*content.Content) error {
	seen := make(map[string]bool, len(cs))
	for _, c := range cs {
		if seen[c.ID] {
			return fmt.Errorf("duplicate content_id %q", c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}
