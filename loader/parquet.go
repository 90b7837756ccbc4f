package loader

import (
	"fmt"

	parquet "github.com/parquet-go/parquet-go"

	"github.com/razeghi71/streamagg/content"
	"github.com/razeghi71/streamagg/record"
)

// ContentRow is the Parquet layout of unified content. Type-specific fields
// are optional.
type ContentRow struct {
	ContentID           string   `parquet:"content_id"`
	Title               string   `parquet:"title"`
	Genre               []string `parquet:"genre,list"`
	ContentType         string   `parquet:"content_type"`
	Rating              float64  `parquet:"rating"`
	ViewsCount          int64    `parquet:"views_count"`
	ProductionBudget    int64    `parquet:"production_budget"`
	ReleaseYear         *int64   `parquet:"release_year,optional"`
	DurationMinutes     *int64   `parquet:"duration_minutes,optional"`
	Seasons             *int64   `parquet:"seasons,optional"`
	EpisodesPerSeason   []int64  `parquet:"episodes_per_season,list"`
	AvgEpisodeDuration  *int64   `parquet:"avg_episode_duration,optional"`
	TotalEpisodes       *int64   `parquet:"total_episodes,optional"`
	TotalRuntimeMinutes *int64   `parquet:"total_runtime_minutes,optional"`
}

func loadParquet(filename string) ([]*record.Record, error) {
	rows, err := parquet.ReadFile[ContentRow](filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read Parquet from %s: %w", filename, err)
	}
	out := make([]*record.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].Record()
	}
	return out, nil
}

// WriteParquet writes content to a Parquet file.
func WriteParquet(filename string, items []*content.Content) error {
	rows := make([]ContentRow, len(items))
	for i, c := range items {
		rows[i] = NewContentRow(c)
	}
	if err := parquet.WriteFile(filename, rows); err != nil {
		return fmt.Errorf("cannot write Parquet to %s: %w", filename, err)
	}
	return nil
}

// NewContentRow flattens content into its Parquet row.
func NewContentRow(c *content.Content) ContentRow {
	ptr := func(n int64) *int64 { return &n }
	row := ContentRow{
		ContentID:        c.ID,
		Title:            c.Title,
		Genre:            c.Genre,
		ContentType:      string(c.Type),
		Rating:           c.Rating,
		ViewsCount:       c.Views,
		ProductionBudget: c.Budget,
	}
	if c.ReleaseYear != 0 {
		row.ReleaseYear = ptr(int64(c.ReleaseYear))
	}
	if c.MovieInfo != nil {
		row.DurationMinutes = ptr(c.MovieInfo.DurationMinutes)
	}
	if s := c.SeriesInfo; s != nil {
		row.Seasons = ptr(s.Seasons)
		row.EpisodesPerSeason = s.EpisodesPerSeason
		row.AvgEpisodeDuration = ptr(s.AvgEpisodeDuration)
		row.TotalEpisodes = ptr(s.TotalEpisodes)
		row.TotalRuntimeMinutes = ptr(s.TotalRuntimeMinutes)
	}
	return row
}

// Record converts the row to a unified record; null columns stay absent.
func (row *ContentRow) Record() *record.Record {
	r := record.New()
	r.Set("content_id", record.StrVal(row.ContentID))
	r.Set("title", record.StrVal(row.Title))
	r.Set("genre", record.Strings(row.Genre...))
	r.Set("content_type", record.StrVal(row.ContentType))
	setOpt := func(name string, v *int64) {
		if v != nil {
			r.Set(name, record.IntVal(*v))
		}
	}
	setOpt("duration_minutes", row.DurationMinutes)
	setOpt("release_year", row.ReleaseYear)
	setOpt("seasons", row.Seasons)
	if row.ContentType == string(content.Series) {
		eps := make([]record.Value, len(row.EpisodesPerSeason))
		for i, n := range row.EpisodesPerSeason {
			eps[i] = record.IntVal(n)
		}
		r.Set("episodes_per_season", record.ArrayVal(eps))
	}
	setOpt("avg_episode_duration", row.AvgEpisodeDuration)
	setOpt("total_episodes", row.TotalEpisodes)
	setOpt("total_runtime_minutes", row.TotalRuntimeMinutes)
	r.Set("rating", record.FloatVal(row.Rating))
	r.Set("views_count", record.IntVal(row.ViewsCount))
	r.Set("production_budget", record.IntVal(row.ProductionBudget))
	return r
}
