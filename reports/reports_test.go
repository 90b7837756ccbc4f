package reports

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/razeghi71/streamagg/engine"
	"github.com/razeghi71/streamagg/ingest"
	"github.com/razeghi71/streamagg/record"
	"github.com/razeghi71/streamagg/store"
)

const sample = `{
  "movies": [
    {"content_id": "M1", "title": "Alpha", "genre": ["Drama", "Sci-Fi"], "duration_minutes": 120,
     "release_year": 2015, "rating": 4.5, "views_count": 9999, "production_budget": 1000},
    {"content_id": "M2", "title": "Beta", "genre": ["Drama"], "duration_minutes": 100,
     "release_year": 2021, "rating": 3.0, "views_count": 20000, "production_budget": 0},
    {"content_id": "M3", "title": "Gamma", "genre": ["Comedy"], "duration_minutes": 80,
     "release_year": 2008, "rating": 1.5, "views_count": 500, "production_budget": 250}
  ],
  "series": [
    {"content_id": "S1", "title": "Delta", "genre": ["Drama"], "seasons": 2, "episodes_per_season": [10, 10],
     "avg_episode_duration": 30, "rating": 4.0, "total_views": 12000, "production_budget": 5000},
    {"content_id": "S2", "title": "Echo", "genre": ["Comedy", "Drama"], "seasons": 1, "episodes_per_season": [5],
     "avg_episode_duration": 60, "rating": 2.0, "total_views": 300, "production_budget": 100}
  ]
}`

func run(t *testing.T, name string) []*record.Record {
	t.Helper()
	c, err := Builtin()
	require.NoError(t, err)
	r, err := c.Get(name)
	require.NoError(t, err)

	res, err := ingest.Convert([]byte(sample))
	require.NoError(t, err)
	out, err := engine.NewRunner(store.NewMemory(res.Collections())).Run(context.Background(), r.Pipeline)
	require.NoError(t, err)
	return out
}

func titles(v record.Value) []string {
	var out []string
	for _, e := range v.Arr {
		out = append(out, e.Rec.Get("title").Str)
	}
	return out
}

func TestBuiltinCatalog(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	var names []string
	for _, r := range c.List() {
		names = append(names, r.Name)
		require.NotEmpty(t, r.Description, r.Name)
		require.NotEmpty(t, r.Pipeline.Stages, r.Name)
		require.Len(t, r.Fingerprint, 64, r.Name)
	}
	require.Equal(t, []string{
		"cross_type_comparison",
		"dashboard",
		"distribution_by_year_group",
		"efficiency_by_genre",
		"engagement_by_genre",
		"movie_budget_efficiency",
		"movie_decades",
		"performance_by_genre",
		"rating_trends_by_year",
		"series_efficiency",
		"top_content",
		"top_movie_genres",
	}, names)

	top, err := c.Get("top_content")
	require.NoError(t, err)
	require.Equal(t, []string{"movies", "series"}, top.Pipeline.Sources())
}

func TestFingerprint(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	r, err := c.Get("dashboard")
	require.NoError(t, err)

	data, err := definitions.ReadFile("definitions/dashboard.yaml")
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%x", sha256.Sum256(data)), r.Fingerprint)
}

func TestGetUnknown(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	_, err = c.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEveryBuiltinRuns(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)
	for _, r := range c.List() {
		t.Run(r.Name, func(t *testing.T) {
			out := run(t, r.Name)
			require.NotEmpty(t, out)
		})
	}
}

func TestTopMovieGenres(t *testing.T) {
	out := run(t, "top_movie_genres")
	require.Len(t, out, 3)
	var ids []string
	for _, r := range out {
		ids = append(ids, r.Get("_id").Str)
	}
	require.Equal(t, []string{"Sci-Fi", "Drama", "Comedy"}, ids)
	require.Equal(t, int64(29999), out[1].Get("totalViews").Int)
	require.Equal(t, 3.75, out[1].Get("avgRating").Float)
	require.Equal(t, int64(2), out[1].Get("items").Int)
	require.InDelta(t, 18.0, out[0].Get("impactScore").Float, 1e-9)
}

func TestDashboard(t *testing.T) {
	out := run(t, "dashboard")
	require.Len(t, out, 1)
	require.Equal(t, []string{"topByRating", "topByViews"}, out[0].Keys())
	require.Equal(t, []string{"Alpha", "Beta", "Gamma"}, titles(out[0].Get("topByRating")))
	require.Equal(t, []string{"Beta", "Alpha", "Gamma"}, titles(out[0].Get("topByViews")))
	require.False(t, out[0].Get("topByViews").Arr[0].Rec.Has("rating"))
}

func TestTopContentUnionsSeries(t *testing.T) {
	out := run(t, "top_content")
	require.Len(t, out, 5)
	var got []string
	for _, r := range out {
		got = append(got, r.Get("title").Str+"/"+r.Get("type").Str)
	}
	require.Equal(t, []string{"Alpha/movie", "Delta/series", "Beta/movie", "Echo/series", "Gamma/movie"}, got)
	require.True(t, out[1].Get("release_year").IsNull())
	require.False(t, out[0].Has("_id"))
}

func TestMovieBudgetEfficiency(t *testing.T) {
	out := run(t, "movie_budget_efficiency")
	require.Len(t, out, 2)
	require.Equal(t, "Alpha", out[0].Get("title").Str)
	require.InDelta(t, 9.999, out[0].Get("views_per_dollar").Float, 1e-9)
	require.Equal(t, "Gamma", out[1].Get("title").Str)
}

func TestCrossTypeComparison(t *testing.T) {
	out := run(t, "cross_type_comparison")
	require.Len(t, out, 2)
	require.Equal(t, "movie", out[0].Get("_id").Str)
	require.InDelta(t, (9999.0/120+200+6.25)/3, out[0].Get("avg_normalized_views").Float, 1e-9)
	require.Equal(t, []string{"Beta", "Alpha", "Gamma"}, titles(out[0].Get("top_content")))
	require.Equal(t, "series", out[1].Get("_id").Str)
	require.InDelta(t, 10.5, out[1].Get("avg_normalized_views").Float, 1e-9)
}

func TestSeriesEfficiency(t *testing.T) {
	out := run(t, "series_efficiency")
	require.Len(t, out, 2)
	require.Equal(t, "Delta", out[0].Get("title").Str)
	require.Equal(t, int64(20), out[0].Get("total_episodes").Int)
	require.InDelta(t, 20.0, out[0].Get("efficiency_views_per_min").Float, 1e-9)
	require.False(t, out[0].Has("_id"))
}

func writeDef(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestAddDir(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "recent.yml", "source: movies\npipeline:\n  - $match: {release_year: {$gte: 2020}}\n")
	writeDef(t, dir, "notes.txt", "ignored")

	c, err := Builtin()
	require.NoError(t, err)
	require.NoError(t, c.AddDir(dir))
	r, err := c.Get("recent")
	require.NoError(t, err)
	require.Equal(t, "movies", r.Source)
	require.Len(t, c.List(), 13)

	require.NoError(t, c.AddDir(filepath.Join(dir, "missing")))
}

func TestAddDirErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"dup.yaml", "name: dashboard\nsource: movies\npipeline: []\n", "duplicate report name"},
		{"nosource.yaml", "pipeline: [{$limit: 1}]\n", "source must not be empty"},
		{"bad.yaml", "source: movies\npipeline: [{$bogus: 1}]\n", "bad.yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeDef(t, dir, tc.name, tc.body)
			c, err := Builtin()
			require.NoError(t, err)
			require.ErrorContains(t, c.AddDir(dir), tc.want)
		})
	}
}
