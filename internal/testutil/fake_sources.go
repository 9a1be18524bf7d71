package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/parsascontentcorner/shelfsync/internal/sources/discogs"
	"github.com/parsascontentcorner/shelfsync/internal/sources/itunes"
)

// FakeDiscogs is an in-process Discogs API serving one user's collection,
// wantlist and cover images.
type FakeDiscogs struct {
	Server *httptest.Server

	mu           sync.Mutex
	collection   []discogs.Release
	wishlist     []discogs.Release
	failWishlist bool

	ListCalls  atomic.Int32
	ImageCalls atomic.Int32
}

// NewFakeDiscogs starts the fake. Close it when done.
func NewFakeDiscogs() *FakeDiscogs {
	f := &FakeDiscogs{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{user}/collection/folders/0/releases", func(w http.ResponseWriter, r *http.Request) {
		f.ListCalls.Add(1)
		f.mu.Lock()
		releases := append([]discogs.Release(nil), f.collection...)
		f.mu.Unlock()

		items, pagination := paginate(releases, r)
		writeJSON(w, map[string]any{"pagination": pagination, "releases": items})
	})
	mux.HandleFunc("GET /users/{user}/wants", func(w http.ResponseWriter, r *http.Request) {
		f.ListCalls.Add(1)
		f.mu.Lock()
		releases := append([]discogs.Release(nil), f.wishlist...)
		fail := f.failWishlist
		f.mu.Unlock()

		if fail {
			http.Error(w, `{"message": "internal error"}`, http.StatusInternalServerError)
			return
		}
		items, pagination := paginate(releases, r)
		writeJSON(w, map[string]any{"pagination": pagination, "wants": items})
	})
	mux.HandleFunc("GET /images/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.ImageCalls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(PNG(600, 600))
	})

	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the API base URL
func (f *FakeDiscogs) URL() string { return f.Server.URL }

// CoverURL returns an image URL served by the fake
func (f *FakeDiscogs) CoverURL(name string) string {
	return f.Server.URL + "/images/" + name + ".png"
}

// SetCollection replaces the collection
func (f *FakeDiscogs) SetCollection(releases ...discogs.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection = releases
}

// SetWishlist replaces the wantlist
func (f *FakeDiscogs) SetWishlist(releases ...discogs.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wishlist = releases
}

// FailWishlist makes the wantlist endpoint answer 500
func (f *FakeDiscogs) FailWishlist(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWishlist = fail
}

// Close shuts the server down
func (f *FakeDiscogs) Close() { f.Server.Close() }

func paginate(releases []discogs.Release, r *http.Request) ([]discogs.Release, discogs.Pagination) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 50
	}

	pages := (len(releases) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	start := min((page-1)*perPage, len(releases))
	end := min(start+perPage, len(releases))

	items := releases[start:end]
	if items == nil {
		items = []discogs.Release{}
	}
	return items, discogs.Pagination{Page: page, Pages: pages, PerPage: perPage, Items: len(releases)}
}

// FakeITunes is an in-process iTunes Search API whose artwork URLs point
// back at itself
type FakeITunes struct {
	Server *httptest.Server

	mu      sync.Mutex
	results []itunes.Result

	SearchCalls atomic.Int32
	failSearch  atomic.Bool
}

// NewFakeITunes starts the fake. Close it when done.
func NewFakeITunes() *FakeITunes {
	f := &FakeITunes{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		f.SearchCalls.Add(1)
		if f.failSearch.Load() {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		f.mu.Lock()
		results := append([]itunes.Result(nil), f.results...)
		f.mu.Unlock()
		writeJSON(w, map[string]any{"resultCount": len(results), "results": results})
	})
	mux.HandleFunc("GET /art/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(PNG(1400, 1400))
	})

	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the API base URL
func (f *FakeITunes) URL() string { return f.Server.URL }

// AddAlbum makes every search return an album by artist
func (f *FakeITunes) AddAlbum(id int64, artist, title, releaseDate string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, itunes.Result{
		CollectionID:   id,
		ArtistName:     artist,
		CollectionName: title,
		ArtworkURL100:  f.Server.URL + "/art/" + strconv.FormatInt(id, 10) + "-100x100bb.png",
		ReleaseDate:    releaseDate,
	})
}

// FailSearch makes /search answer 503 until reset
func (f *FakeITunes) FailSearch(fail bool) { f.failSearch.Store(fail) }

// Close shuts the server down
func (f *FakeITunes) Close() { f.Server.Close() }

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
