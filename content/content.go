// Package content defines the unified movie/series content model and the
// invariants every ingested record satisfies.
package content

import (
	"errors"
	"fmt"
	"strings"

	"github.com/razeghi71/streamagg/record"
)

// Type discriminates the content variants.
type Type string

const (
	Movie  Type = "movie"
	Series Type = "series"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid content")

// Content is one catalog entry. Exactly one of MovieInfo and SeriesInfo is set,
// matching Type.
type Content struct {
	ID          string
	Title       string
	Genre       []string
	Type        Type
	Rating      float64
	Views       int64
	Budget      int64
	ReleaseYear int // 0 when unknown

	MovieInfo  *MovieDetails
	SeriesInfo *SeriesDetails
}

// MovieDetails holds the movie-only fields.
type MovieDetails struct {
	DurationMinutes int64
}

// SeriesDetails holds the series-only fields.
type SeriesDetails struct {
	Seasons             int64
	EpisodesPerSeason   []int64
	AvgEpisodeDuration  int64
	TotalEpisodes       int64
	TotalRuntimeMinutes int64
}

// NewSeriesDetails derives the episode and runtime totals.
func NewSeriesDetails(episodesPerSeason []int64, avgEpisodeDuration int64) *SeriesDetails {
	var total int64
	for _, n := range episodesPerSeason {
		total += n
	}
	return &SeriesDetails{
		Seasons:             int64(len(episodesPerSeason)),
		EpisodesPerSeason:   episodesPerSeason,
		AvgEpisodeDuration:  avgEpisodeDuration,
		TotalEpisodes:       total,
		TotalRuntimeMinutes: total * avgEpisodeDuration,
	}
}

// RuntimeMinutes is the movie duration or the total series runtime.
func (c *Content) RuntimeMinutes() int64 {
	switch {
	case c.MovieInfo != nil:
		return c.MovieInfo.DurationMinutes
	case c.SeriesInfo != nil:
		return c.SeriesInfo.TotalRuntimeMinutes
	}
	return 0
}

// EpisodeCount is 1 for movies and the total episode count for series.
func (c *Content) EpisodeCount() int64 {
	if c.SeriesInfo != nil {
		return c.SeriesInfo.TotalEpisodes
	}
	return 1
}

// Validate checks the content invariants and reports every violation.
func (c *Content) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.ID == "" {
		bad("content_id is required")
	}
	if c.Title == "" {
		bad("title is required")
	}
	if len(c.Genre) == 0 {
		bad("genre must be a non-empty list")
	}
	for i, g := range c.Genre {
		if strings.TrimSpace(g) == "" {
			bad("genre[%d] is empty", i)
		}
	}
	if c.Rating < 0 || c.Rating > 5 {
		bad("rating %v out of range 0..5", c.Rating)
	}
	if c.Views < 0 {
		bad("views_count must be non-negative, got %d", c.Views)
	}
	if c.Budget < 0 {
		bad("production_budget must be non-negative, got %d", c.Budget)
	}
	if c.ReleaseYear != 0 && c.ReleaseYear < 1900 {
		bad("release_year %d before 1900", c.ReleaseYear)
	}

	switch c.Type {
	case Movie:
		if c.MovieInfo == nil || c.SeriesInfo != nil {
			bad("movie must carry movie details only")
		} else if c.MovieInfo.DurationMinutes < 1 {
			bad("duration_minutes must be at least 1, got %d", c.MovieInfo.DurationMinutes)
		}
	case Series:
		if c.SeriesInfo == nil || c.MovieInfo != nil {
			bad("series must carry series details only")
			break
		}
		s := c.SeriesInfo
		if s.Seasons < 1 {
			bad("seasons must be at least 1, got %d", s.Seasons)
		}
		if s.AvgEpisodeDuration < 1 {
			bad("avg_episode_duration must be at least 1, got %d", s.AvgEpisodeDuration)
		}
		if s.TotalEpisodes < 1 {
			bad("total_episodes must be at least 1, got %d", s.TotalEpisodes)
		}
		if s.TotalRuntimeMinutes < 1 {
			bad("total_runtime_minutes must be at least 1, got %d", s.TotalRuntimeMinutes)
		}
	default:
		bad("content_type must be %q or %q, got %q", Movie, Series, c.Type)
	}

	if len(errs) == 0 {
		return nil
	}
	label := c.ID
	if label == "" {
		label = c.Title
	}
	return fmt.Errorf("%w %q: %w", ErrInvalid, label, errors.Join(errs...))
}

// Record converts the content into its unified record form.
func (c *Content) Record() *record.Record {
	r := record.New()
	r.Set("content_id", record.StrVal(c.ID))
	r.Set("title", record.StrVal(c.Title))
	r.Set("genre", record.Strings(c.Genre...))
	r.Set("content_type", record.StrVal(string(c.Type)))
	if c.MovieInfo != nil {
		r.Set("duration_minutes", record.IntVal(c.MovieInfo.DurationMinutes))
	}
	if c.ReleaseYear != 0 {
		r.Set("release_year", record.IntVal(int64(c.ReleaseYear)))
	}
	if s := c.SeriesInfo; s != nil {
		eps := make([]record.Value, len(s.EpisodesPerSeason))
		for i, n := range s.EpisodesPerSeason {
			eps[i] = record.IntVal(n)
		}
		r.Set("seasons", record.IntVal(s.Seasons))
		r.Set("episodes_per_season", record.ArrayVal(eps))
		r.Set("avg_episode_duration", record.IntVal(s.AvgEpisodeDuration))
		r.Set("total_episodes", record.IntVal(s.TotalEpisodes))
		r.Set("total_runtime_minutes", record.IntVal(s.TotalRuntimeMinutes))
	}
	r.Set("rating", record.FloatVal(c.Rating))
	r.Set("views_count", record.IntVal(c.Views))
	r.Set("production_budget", record.IntVal(c.Budget))
	return r
}

// FromRecord reads a unified record. It checks field types but not the
// invariants; call Validate for those.
func FromRecord(r *record.Record) (*Content, error) {
	f := fields{r: r}
	c := &Content{
		ID:     f.str("content_id"),
		Title:  f.str("title"),
		Genre:  f.strs("genre"),
		Type:   Type(f.str("content_type")),
		Rating: f.float("rating"),
		Views:  f.int("views_count"),
		Budget: f.int("production_budget"),
	}
	if r.Has("release_year") {
		c.ReleaseYear = int(f.int("release_year"))
	}
	switch c.Type {
	case Movie:
		c.MovieInfo = &MovieDetails{DurationMinutes: f.int("duration_minutes")}
	case Series:
		c.SeriesInfo = &SeriesDetails{
			Seasons:             f.int("seasons"),
			EpisodesPerSeason:   f.ints("episodes_per_season"),
			AvgEpisodeDuration:  f.int("avg_episode_duration"),
			TotalEpisodes:       f.int("total_episodes"),
			TotalRuntimeMinutes: f.int("total_runtime_minutes"),
		}
	}
	if f.err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalid, r.Identity(), f.err)
	}
	return c, nil
}

// fields reads typed values from a record, keeping the first error.
type fields struct {
	r   *record.Record
	err error
}

func (f *fields) fail(name string, v record.Value, want string) {
	if f.err == nil {
		f.err = fmt.Errorf("%s: expected %s, got %s", name, want, v.Type)
	}
}

func (f *fields) str(name string) string {
	v := f.r.Get(name)
	if v.IsMissing() {
		return ""
	}
	if v.Type != record.TypeString {
		f.fail(name, v, "string")
		return ""
	}
	return v.Str
}

func (f *fields) strs(name string) []string {
	v := f.r.Get(name)
	if v.IsMissing() {
		return nil
	}
	if v.Type != record.TypeArray {
		f.fail(name, v, "array of strings")
		return nil
	}
	out := make([]string, 0, len(v.Arr))
	for _, e := range v.Arr {
		if e.Type != record.TypeString {
			f.fail(name, e, "array of strings")
			return nil
		}
		out = append(out, e.Str)
	}
	return out
}

func (f *fields) float(name string) float64 {
	v := f.r.Get(name)
	if v.IsMissing() {
		return 0
	}
	x, ok := v.AsFloat()
	if !ok {
		f.fail(name, v, "number")
	}
	return x
}

func (f *fields) int(name string) int64 {
	v := f.r.Get(name)
	if v.IsMissing() {
		return 0
	}
	n, ok := v.AsInt()
	if !ok {
		f.fail(name, v, "integer")
	}
	return n
}

func (f *fields) ints(name string) []int64 {
	v := f.r.Get(name)
	if v.IsMissing() {
		return nil
	}
	if v.Type != record.TypeArray {
		f.fail(name, v, "array of integers")
		return nil
	}
	out := make([]int64, 0, len(v.Arr))
	for _, e := range v.Arr {
		n, ok := e.AsInt()
		if !ok {
			f.fail(name, e, "array of integers")
			return nil
		}
		out = append(out, n)
	}
	return out
}
