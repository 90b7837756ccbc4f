// Command gen writes a reproducible sample catalog into testdata/ as
// content.json, movies.parquet and series.avro, one file per collection.
package main

import (
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/razeghi71/streamagg/content"
	"github.com/razeghi71/streamagg/loader"
)

var (
	genres     = []string{"Action", "Comedy", "Crime", "Documentary", "Drama", "Horror", "Romance", "Sci-Fi", "Thriller"}
	adjectives = []string{"Advanced", "Broken", "Silent", "Hidden", "Last", "Golden", "Dark", "Endless"}
	nouns      = []string{"World", "Investigators", "Horizon", "Kingdom", "Signal", "Harbor", "Empire", "Code"}
)

func title(rng *rand.Rand) string {
	return adjectives[rng.IntN(len(adjectives))] + " " + nouns[rng.IntN(len(nouns))]
}

func pickGenres(rng *rand.Rand) []string {
	perm := rng.Perm(len(genres))
	out := make([]string, 1+rng.IntN(3))
	for i := range out {
		out[i] = genres[perm[i]]
	}
	return out
}

func rating(rng *rand.Rand) float64 {
	return float64(rng.IntN(51)) / 10
}

func generate(rng *rand.Rand, movies, series int) []*content.Content {
	var out []*content.Content
	for i := 1; i <= movies; i++ {
		out = append(out, &content.Content{
			ID:          fmt.Sprintf("M%03d", i),
			Title:       title(rng),
			Genre:       pickGenres(rng),
			Type:        content.Movie,
			Rating:      rating(rng),
			Views:       rng.Int64N(100000),
			Budget:      rng.Int64N(250000000),
			ReleaseYear: 2000 + rng.IntN(25),
			MovieInfo:   &content.MovieDetails{DurationMinutes: 80 + rng.Int64N(100)},
		})
	}
	for i := 1; i <= series; i++ {
		eps := make([]int64, 1+rng.IntN(7))
		for j := range eps {
			eps[j] = 6 + rng.Int64N(15)
		}
		out = append(out, &content.Content{
			ID:         fmt.Sprintf("S%03d", i),
			Title:      title(rng),
			Genre:      pickGenres(rng),
			Type:       content.Series,
			Rating:     rating(rng),
			Views:      rng.Int64N(100000),
			Budget:     rng.Int64N(50000000),
			SeriesInfo: content.NewSeriesDetails(eps, 20+rng.Int64N(41)),
		})
	}
	return out
}

func writeJSON(path string, items []*content.Content) error {
	var b strings.Builder
	b.WriteString("[\n")
	for i, c := range items {
		doc, err := c.Record().MarshalJSON()
		if err != nil {
			return err
		}
		b.WriteString("  ")
		b.Write(doc)
		if i < len(items)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("]\n")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func main() {
	rng := rand.New(rand.NewPCG(2024, 1))
	items := generate(rng, 40, 20)

	var movies, series []*content.Content
	for _, c := range items {
		if err := c.Validate(); err != nil {
			log.Fatal(err)
		}
		if c.Type == content.Movie {
			movies = append(movies, c)
		} else {
			series = append(series, c)
		}
	}

	if err := writeJSON("testdata/content.json", items); err != nil {
		log.Fatal(err)
	}
	if err := loader.WriteParquet("testdata/movies.parquet", movies); err != nil {
		log.Fatal(err)
	}

	f, err := os.Create("testdata/series.avro")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := loader.WriteAvro(f, series); err != nil {
		log.Fatal(err)
	}
}
