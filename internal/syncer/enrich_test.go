package syncer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/shelfsync/internal/imagecache"
	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/sources/itunes"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

// fakeImages "stores" every request with a non-empty URL
type fakeImages struct {
	mu       sync.Mutex
	requests []imagecache.Request
	fail     map[string]bool
}

func (f *fakeImages) Acquire(ctx context.Context, req imagecache.Request) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if req.URL == "" || f.fail[req.SourceTag] {
		return "", false
	}
	return "/images/" + req.ItemType + "/" + req.ItemID + "/" + req.SourceTag + ".jpg", true
}

type fakeFinder struct {
	match itunes.Match
	ok    bool
	err   error
}

func (f fakeFinder) FindArtwork(ctx context.Context, artist, title string) (itunes.Match, bool, error) {
	return f.match, f.ok, f.err
}

// countingFinder answers like fakeFinder and counts lookups
type countingFinder struct {
	fakeFinder
	calls int
}

func (f *countingFinder) FindArtwork(ctx context.Context, artist, title string) (itunes.Match, bool, error) {
	f.calls++
	return f.fakeFinder.FindArtwork(ctx, artist, title)
}

// storedRecords serves FindOne by external_id
type storedRecords map[string]models.Record

func (s storedRecords) FindOne(ctx context.Context, cond store.Conditions) (models.Record, error) {
	id, _ := cond["external_id"].(string)
	r, ok := s[id]
	if !ok {
		return models.Record{}, store.ErrNotFound
	}
	return r, nil
}

func TestRecordImages_PrefersMatchedArtwork(t *testing.T) {
	images := &fakeImages{}
	finder := fakeFinder{ok: true, match: itunes.Match{ArtworkURL: "https://is1.mzstatic.com/1200x1200bb.jpg", ReleaseYear: 1957}}
	header := http.Header{"Authorization": []string{"Discogs token=abc"}}
	enrich := RecordImages(images, finder, nil, header, nil)

	r := enrich(context.Background(), models.Record{
		ExternalID:    "249504",
		Title:         "Blue Train",
		Artist:        "John Coltrane",
		Year:          1977,
		CoverImageURL: "https://img.discogs.com/cover.jpg",
	})

	assert.Equal(t, "/images/records/249504/discogs.jpg", r.CoverImageLocalPath)
	assert.Equal(t, "https://is1.mzstatic.com/1200x1200bb.jpg", r.HighResImageURL)
	assert.Equal(t, "/images/records/249504/itunes.jpg", r.HighResImageLocalPath)
	assert.Equal(t, "/images/records/249504/itunes.jpg", r.DisplayImage())
	assert.Equal(t, 1957, r.Year, "an earlier matched release year replaces a reissue year")

	require.Len(t, images.requests, 2)
	assert.Equal(t, header, images.requests[0].Header)
	assert.Nil(t, images.requests[1].Header)
}

func TestRecordImages_LaterMatchedYearIsIgnored(t *testing.T) {
	finder := fakeFinder{ok: true, match: itunes.Match{ArtworkURL: "https://x/1200x1200bb.jpg", ReleaseYear: 2003}}
	enrich := RecordImages(&fakeImages{}, finder, nil, nil, nil)

	r := enrich(context.Background(), models.Record{ExternalID: "1", Artist: "A", Title: "T", Year: 1957})
	assert.Equal(t, 1957, r.Year)

	r = enrich(context.Background(), models.Record{ExternalID: "2", Artist: "A", Title: "T"})
	assert.Equal(t, 2003, r.Year, "an unknown year takes the matched one")
}

func TestRecordImages_NoMatchKeepsMarketplaceCover(t *testing.T) {
	enrich := RecordImages(&fakeImages{}, fakeFinder{}, nil, nil, nil)

	r := enrich(context.Background(), models.Record{
		ExternalID:    "3",
		Artist:        "Unknown",
		Title:         "Private Press",
		CoverImageURL: "https://img.discogs.com/cover.jpg",
	})

	assert.Empty(t, r.HighResImageURL)
	assert.Empty(t, r.HighResImageLocalPath)
	assert.Equal(t, "/images/records/3/discogs.jpg", r.DisplayImage())
}

func TestRecordImages_LookupErrorIsAbsorbed(t *testing.T) {
	enrich := RecordImages(&fakeImages{}, fakeFinder{err: errors.New("rate limited")}, nil, nil, nil)

	r := enrich(context.Background(), models.Record{ExternalID: "4", Artist: "A", Title: "T", Year: 1990})

	assert.Empty(t, r.HighResImageURL)
	assert.Equal(t, 1990, r.Year)
}

func TestRecordImages_WithoutFinder(t *testing.T) {
	images := &fakeImages{fail: map[string]bool{SourceDiscogs: true}}
	enrich := RecordImages(images, nil, nil, nil, nil)

	r := enrich(context.Background(), models.Record{ExternalID: "5", Artist: "A", Title: "T", CoverImageURL: "https://x/broken.jpg"})

	assert.Empty(t, r.CoverImageLocalPath)
	assert.Equal(t, "https://x/broken.jpg", r.DisplayImage())
}

func TestRecordImages_StoredArtworkSkipsLookup(t *testing.T) {
	images := &fakeImages{}
	finder := &countingFinder{fakeFinder: fakeFinder{err: errors.New("should not be asked")}}
	stored := storedRecords{"6": {
		ExternalID:            "6",
		Year:                  1957,
		HighResImageURL:       "https://x/1200x1200bb.jpg",
		HighResImageLocalPath: "/images/records/6/itunes.jpg",
	}}
	enrich := RecordImages(images, finder, stored, nil, nil)

	r := enrich(context.Background(), models.Record{ExternalID: "6", Artist: "A", Title: "T", Year: 1977})

	assert.Equal(t, 0, finder.calls)
	assert.Equal(t, "https://x/1200x1200bb.jpg", r.HighResImageURL)
	assert.Equal(t, "/images/records/6/itunes.jpg", r.HighResImageLocalPath)
	assert.Equal(t, 1957, r.Year)
	require.Len(t, images.requests, 1)
	assert.Equal(t, SourceITunes, images.requests[0].SourceTag)
	assert.Equal(t, "https://x/1200x1200bb.jpg", images.requests[0].URL)
}

func TestRecordImages_FailedLookupKeepsEarlierMatch(t *testing.T) {
	finder := &countingFinder{fakeFinder: fakeFinder{ok: true, match: itunes.Match{ArtworkURL: "https://x/1200x1200bb.jpg", ReleaseYear: 1970}}}
	images := &fakeImages{}
	stored := storedRecords{}
	enrich := RecordImages(images, finder, stored, nil, nil)
	in := models.Record{ExternalID: "1", Artist: "A", Title: "T"}

	first := enrich(context.Background(), in)
	require.Equal(t, "/images/records/1/itunes.jpg", first.HighResImageLocalPath)
	stored["1"] = first

	// the cached copy is gone and the source is down
	images.fail = map[string]bool{SourceITunes: true}
	finder.fakeFinder = fakeFinder{err: errors.New("rate limited")}
	second := enrich(context.Background(), in)

	assert.Equal(t, 2, finder.calls)
	assert.Equal(t, "https://x/1200x1200bb.jpg", second.HighResImageURL)
	assert.Empty(t, second.HighResImageLocalPath)
	assert.Equal(t, 1970, second.Year)

	finder.fakeFinder = fakeFinder{}
	third := enrich(context.Background(), in)
	assert.Equal(t, "https://x/1200x1200bb.jpg", third.HighResImageURL, "no match keeps the earlier match too")
}

func TestBoardGameImages(t *testing.T) {
	enrich := BoardGameImages(&fakeImages{})

	g := enrich(context.Background(), models.BoardGame{ExternalID: "13", ImageURL: "https://x/catan.jpg", ThumbnailURL: "https://x/catan_t.jpg"})

	assert.Equal(t, "/images/board_games/13/bgg.jpg", g.ImageLocalPath)
	assert.Equal(t, "/images/board_games/13/bgg_thumb.jpg", g.ThumbnailLocalPath)
}

func TestBookImages(t *testing.T) {
	enrich := BookImages(&fakeImages{})

	b := enrich(context.Background(), models.Book{ExternalID: "100", CoverURL: "https://x/dune.jpg"})
	assert.Equal(t, "/images/books/100/hardcover.jpg", b.CoverLocalPath)

	b = enrich(context.Background(), models.Book{ExternalID: "101"})
	assert.Empty(t, b.CoverLocalPath)
}
