package itunes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/shelfsync/internal/config"
)

const searchJSON = `{"resultCount":3,"results":[
	{"collectionId":1,"artistName":"Miles Davis","collectionName":"Blue Train","artworkUrl100":"https://is1.mzstatic.com/a/100x100bb.jpg","releaseDate":"1990-01-01T08:00:00Z"},
	{"collectionId":2,"artistName":"John Coltrane","collectionName":"Blue Train (Remastered)","artworkUrl100":"https://is1.mzstatic.com/b/100x100bb.jpg","releaseDate":"1957-09-15T07:00:00Z"},
	{"collectionId":3,"artistName":"John Coltrane","collectionName":"Giant Steps","artworkUrl100":"https://is1.mzstatic.com/c/100x100bb.jpg","releaseDate":"1960-01-27T08:00:00Z"}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New(config.ITunesConfig{Enabled: true, Country: "gb", RequestsPerMinute: 1000, ArtworkSize: 1200}, nil)
	c.SetBaseURL(server.URL)
	return c
}

func TestSearch_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "John Coltrane Blue Train", r.URL.Query().Get("term"))
		assert.Equal(t, "album", r.URL.Query().Get("entity"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "gb", r.URL.Query().Get("country"))
		_, _ = w.Write([]byte(searchJSON))
	})

	results, err := c.Search(context.Background(), "John Coltrane", "Blue Train [Mono]")

	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestFindArtwork_Match(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchJSON))
	})

	match, ok, err := c.FindArtwork(context.Background(), "John Coltrane", "Blue Train")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), match.Result.CollectionID)
	assert.Equal(t, "https://is1.mzstatic.com/b/1200x1200bb.jpg", match.ArtworkURL)
	assert.Equal(t, 1957, match.ReleaseYear)
}

func TestFindArtwork_NoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchJSON))
	})

	_, ok, err := c.FindArtwork(context.Background(), "Thelonious Monk", "Brilliant Corners")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindArtwork_SearchError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, ok, err := c.FindArtwork(context.Background(), "John Coltrane", "Blue Train")

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestResult_Helpers(t *testing.T) {
	r := Result{ArtworkURL100: "https://x/100x100bb.jpg", ReleaseDate: "2001-05-01T00:00:00Z"}
	assert.Equal(t, "https://x/600x600bb.jpg", r.Artwork(600))
	assert.Equal(t, 2001, r.ReleaseYear())

	assert.Empty(t, Result{}.Artwork(600))
	assert.Zero(t, Result{ReleaseDate: "n/a"}.ReleaseYear())
}
