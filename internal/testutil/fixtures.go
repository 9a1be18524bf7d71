package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/internal/sources/discogs"
)

// PNG returns an opaque w x h PNG
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 60, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GenerateRelease creates a Discogs list entry for a single-artist LP
func GenerateRelease(id int64, artist, title, coverURL string) discogs.Release {
	return discogs.Release{
		ID:         id,
		InstanceID: id * 10,
		DateAdded:  "2024-03-01T10:00:00-08:00",
		BasicInformation: discogs.BasicInformation{
			ID:         id,
			Title:      title,
			Year:       1959,
			CoverImage: coverURL,
			Artists:    []discogs.Artist{{Name: artist}},
			Labels:     []discogs.Label{{Name: "Blue Note", CatNo: "BLP 1577"}},
			Formats:    []discogs.Format{{Name: "Vinyl", Qty: "1", Descriptions: []string{"LP", "Album"}}},
			Genres:     []string{"Jazz"},
		},
	}
}

// GenerateTestConfig returns a valid in-memory configuration with only the
// Discogs source enabled, tuned so passes finish quickly
func GenerateTestConfig(imageDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPPort: "0",
			GRPCPort: "0",
			Host:     "localhost",
			Env:      "test",
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		Logging:  config.LoggingConfig{Level: "debug", Format: "console"},
		Discogs: config.DiscogsConfig{
			Username:     "collector",
			Token:        "test_token",
			RequestDelay: time.Millisecond,
		},
		BGG:       config.BGGConfig{RequestDelay: 2 * time.Millisecond},
		Hardcover: config.HardcoverConfig{RequestsPerMinute: 60},
		ITunes: config.ITunesConfig{
			Enabled:           false,
			Country:           "us",
			RequestsPerMinute: 1000,
			ArtworkSize:       1200,
		},
		Sync: config.SyncConfig{
			Interval:  time.Hour,
			BatchSize: 3,
		},
		Cache: config.CacheConfig{
			DefaultTTL:    time.Minute,
			MaxEntries:    100,
			SweepInterval: time.Minute,
		},
		ImageCache: config.ImageCacheConfig{
			Dir:          imageDir,
			URLPrefix:    "/images",
			MaxDimension: 500,
			Quality:      85,
			FetchTimeout: 5 * time.Second,
		},
	}
}
