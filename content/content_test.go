package content

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/razeghi71/streamagg/record"
)

func movie() *Content {
	return &Content{
		ID:          "M001",
		Title:       "Advanced World",
		Genre:       []string{"Sci-Fi", "Horror", "Drama"},
		Type:        Movie,
		Rating:      3.5,
		Views:       66721,
		Budget:      220088717,
		ReleaseYear: 2020,
		MovieInfo:   &MovieDetails{DurationMinutes: 179},
	}
}

func series() *Content {
	return &Content{
		ID:         "S001",
		Title:      "The Investigators",
		Genre:      []string{"Crime"},
		Type:       Series,
		Rating:     1.3,
		Views:      50315,
		Budget:     44041273,
		SeriesInfo: NewSeriesDetails([]int64{8, 14, 7, 17, 12, 13, 18}, 50),
	}
}

func TestNewSeriesDetails(t *testing.T) {
	s := NewSeriesDetails([]int64{8, 14, 7, 17, 12, 13, 18}, 50)
	require.Equal(t, int64(7), s.Seasons)
	require.Equal(t, int64(89), s.TotalEpisodes)
	require.Equal(t, int64(4450), s.TotalRuntimeMinutes)
}

func TestCapabilityAccessors(t *testing.T) {
	m, s := movie(), series()
	require.Equal(t, int64(179), m.RuntimeMinutes())
	require.Equal(t, int64(1), m.EpisodeCount())
	require.Equal(t, int64(4450), s.RuntimeMinutes())
	require.Equal(t, int64(89), s.EpisodeCount())
}

func TestValidate(t *testing.T) {
	require.NoError(t, movie().Validate())
	require.NoError(t, series().Validate())

	tests := []struct {
		name   string
		mutate func(c *Content)
		msg    string
	}{
		{"rating above 5", func(c *Content) { c.Rating = 5.1 }, "rating"},
		{"negative views", func(c *Content) { c.Views = -1 }, "views_count"},
		{"negative budget", func(c *Content) { c.Budget = -5 }, "production_budget"},
		{"empty genre", func(c *Content) { c.Genre = nil }, "genre"},
		{"missing title", func(c *Content) { c.Title = "" }, "title"},
		{"unknown type", func(c *Content) { c.Type = "short" }, "content_type"},
		{"zero duration", func(c *Content) { c.MovieInfo.DurationMinutes = 0 }, "duration_minutes"},
		{"movie with series details", func(c *Content) { c.SeriesInfo = &SeriesDetails{} }, "movie details only"},
		{"early release", func(c *Content) { c.ReleaseYear = 1850 }, "release_year"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := movie()
			tc.mutate(c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			require.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	c := series()
	c.Rating = 9
	c.SeriesInfo.AvgEpisodeDuration = 0
	err := c.Validate()
	require.ErrorContains(t, err, "rating")
	require.ErrorContains(t, err, "avg_episode_duration")
}

func TestRecordRoundTrip(t *testing.T) {
	for _, c := range []*Content{movie(), series()} {
		r := c.Record()
		require.Equal(t, "content_id", r.Keys()[0])
		back, err := FromRecord(r)
		require.NoError(t, err)
		require.Equal(t, c, back)
	}
}

func TestRecordUsesUnifiedNames(t *testing.T) {
	r := series().Record()
	require.True(t, r.Has("views_count"))
	require.False(t, r.Has("total_views"))
	require.False(t, r.Has("duration_minutes"))
	require.Equal(t, "series", r.Get("content_type").Str)
}

func TestFromRecordTypeErrors(t *testing.T) {
	r, err := record.ParseJSONRecord([]byte(`{"content_id": "X1", "title": "x", "genre": "Drama", "content_type": "movie"}`))
	require.NoError(t, err)
	_, err = FromRecord(r)
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorContains(t, err, "genre")

	r, err = record.ParseJSONRecord([]byte(`{"content_id": "X2", "title": "x", "genre": ["Drama"], "content_type": "movie", "rating": 4, "duration_minutes": 90.0}`))
	require.NoError(t, err)
	c, err := FromRecord(r)
	require.NoError(t, err)
	require.Equal(t, int64(90), c.RuntimeMinutes())
	require.Equal(t, 4.0, c.Rating)
}
