package syncer

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/imagecache"
	"github.com/parsascontentcorner/shelfsync/internal/metrics"
	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/sources/itunes"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

// Image source tags, one cached file per tag and item
const (
	SourceDiscogs      = "discogs"
	SourceITunes       = "itunes"
	SourceBGG          = "bgg"
	SourceBGGThumbnail = "bgg_thumb"
	SourceHardcover    = "hardcover"
)

// ImageAcquirer stores a remote image locally
type ImageAcquirer interface {
	Acquire(ctx context.Context, req imagecache.Request) (webPath string, ok bool)
}

// ArtworkFinder looks up high resolution artwork for a release
type ArtworkFinder interface {
	FindArtwork(ctx context.Context, artist, title string) (itunes.Match, bool, error)
}

// RecordLookup reads the stored copy of a record
type RecordLookup interface {
	FindOne(ctx context.Context, cond store.Conditions) (models.Record, error)
}

// RecordImages caches the marketplace cover and, when finder is set, the
// best matching high resolution artwork. A matched release year replaces
// the known year unless it is later.
//
// Artwork found on an earlier pass is reused from the stored record without
// a new lookup, and survives a lookup that fails or finds nothing.
func RecordImages(images ImageAcquirer, finder ArtworkFinder, stored RecordLookup, header http.Header, logger *zap.Logger) Enricher[models.Record] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, r models.Record) models.Record {
		if r.CoverImageURL != "" {
			if path, ok := images.Acquire(ctx, imagecache.Request{
				ItemType:  models.TableRecords,
				ItemID:    r.ExternalID,
				URL:       r.CoverImageURL,
				SourceTag: SourceDiscogs,
				Header:    header,
			}); ok {
				r.CoverImageLocalPath = path
			}
		}

		if finder == nil || r.Artist == "" {
			return r
		}

		prev, havePrev := previousArtwork(ctx, stored, r.ExternalID, logger)
		if havePrev {
			if path, ok := acquireArtwork(ctx, images, r.ExternalID, prev.HighResImageURL); ok {
				metrics.SecondaryMatches.WithLabelValues("reused").Inc()
				r.HighResImageURL = prev.HighResImageURL
				r.HighResImageLocalPath = path
				r.Year = earlierYear(r.Year, prev.Year)
				return r
			}
		}

		match, ok, err := finder.FindArtwork(ctx, r.Artist, r.Title)
		switch {
		case err != nil:
			metrics.SecondaryMatches.WithLabelValues("error").Inc()
			logger.Debug("Artwork lookup failed", zap.String("external_id", r.ExternalID), zap.Error(err))
			return keepArtwork(r, prev, havePrev)
		case !ok:
			metrics.SecondaryMatches.WithLabelValues("no_match").Inc()
			logger.Debug("No high resolution artwork match",
				zap.String("external_id", r.ExternalID),
				zap.String("artist", r.Artist),
				zap.String("title", r.Title),
			)
			return keepArtwork(r, prev, havePrev)
		}

		metrics.SecondaryMatches.WithLabelValues("matched").Inc()
		r.HighResImageURL = match.ArtworkURL
		if path, ok := acquireArtwork(ctx, images, r.ExternalID, match.ArtworkURL); ok {
			r.HighResImageLocalPath = path
		}
		r.Year = earlierYear(r.Year, match.ReleaseYear)
		return r
	}
}

// previousArtwork returns the stored record when it carries matched artwork
func previousArtwork(ctx context.Context, stored RecordLookup, externalID string, logger *zap.Logger) (models.Record, bool) {
	if stored == nil {
		return models.Record{}, false
	}
	prev, err := stored.FindOne(ctx, store.Conditions{"external_id": externalID})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Debug("Stored record lookup failed", zap.String("external_id", externalID), zap.Error(err))
		}
		return models.Record{}, false
	}
	return prev, prev.HighResImageURL != ""
}

func acquireArtwork(ctx context.Context, images ImageAcquirer, externalID, url string) (string, bool) {
	return images.Acquire(ctx, imagecache.Request{
		ItemType:  models.TableRecords,
		ItemID:    externalID,
		URL:       url,
		SourceTag: SourceITunes,
	})
}

// keepArtwork carries the stored artwork URL and year over after a failed
// lookup. Its local copy was already found unusable.
func keepArtwork(r, prev models.Record, havePrev bool) models.Record {
	if !havePrev {
		return r
	}
	r.HighResImageURL = prev.HighResImageURL
	r.Year = earlierYear(r.Year, prev.Year)
	return r
}

// earlierYear returns candidate when it is known and not later than year
func earlierYear(year, candidate int) int {
	if candidate > 0 && (year == 0 || candidate <= year) {
		return candidate
	}
	return year
}

// BoardGameImages caches the game's image and thumbnail
func BoardGameImages(images ImageAcquirer) Enricher[models.BoardGame] {
	return func(ctx context.Context, g models.BoardGame) models.BoardGame {
		if path, ok := images.Acquire(ctx, imagecache.Request{
			ItemType:  models.TableBoardGames,
			ItemID:    g.ExternalID,
			URL:       g.ImageURL,
			SourceTag: SourceBGG,
		}); ok {
			g.ImageLocalPath = path
		}
		if path, ok := images.Acquire(ctx, imagecache.Request{
			ItemType:  models.TableBoardGames,
			ItemID:    g.ExternalID,
			URL:       g.ThumbnailURL,
			SourceTag: SourceBGGThumbnail,
		}); ok {
			g.ThumbnailLocalPath = path
		}
		return g
	}
}

// BookImages caches the book cover
func BookImages(images ImageAcquirer) Enricher[models.Book] {
	return func(ctx context.Context, b models.Book) models.Book {
		if path, ok := images.Acquire(ctx, imagecache.Request{
			ItemType:  models.TableBooks,
			ItemID:    b.ExternalID,
			URL:       b.CoverURL,
			SourceTag: SourceHardcover,
		}); ok {
			b.CoverLocalPath = path
		}
		return b
	}
}
