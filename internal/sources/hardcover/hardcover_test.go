package hardcover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/shelfsync/internal/config"
)

type capturedRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestFetcher(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) *Fetcher {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		assert.Equal(t, "Bearer hc-token", r.Header.Get("Authorization"))
		var req capturedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(server.Close)

	f := New(config.HardcoverConfig{Token: "hc-token", RequestsPerMinute: 1000}, nil)
	f.SetBaseURL(server.URL)
	return f
}

const userBookJSON = `{"id": %d, "rating": 4.5, "status_id": 3, "book": {"id": %d, "title": "Dune", "release_year": 1965, "pages": 412, "image": {"url": "https://assets.hardcover.app/dune.jpg"}, "contributions": [{"author": {"name": "Frank Herbert"}}]}}`

func TestUserID_ResolvedOnce(t *testing.T) {
	var calls atomic.Int32
	f := newTestFetcher(t, func(w http.ResponseWriter, req capturedRequest) {
		calls.Add(1)
		assert.Contains(t, req.Query, "me {")
		_, _ = w.Write([]byte(`{"data":{"me":[{"id":42,"username":"reader"}]}}`))
	})

	for i := 0; i < 3; i++ {
		id, err := f.UserID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestUserID_ObjectShape(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, req capturedRequest) {
		_, _ = w.Write([]byte(`{"data":{"me":{"id":7}}}`))
	})

	id, err := f.UserID(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestUserID_NoUser(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, req capturedRequest) {
		_, _ = w.Write([]byte(`{"data":{"me":[]}}`))
	})

	_, err := f.UserID(context.Background())
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestFetchCollectionPage_SendsStatusesAndOffset(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, req capturedRequest) {
		if strings.Contains(req.Query, "me {") {
			_, _ = w.Write([]byte(`{"data":{"me":[{"id":42}]}}`))
			return
		}
		assert.Equal(t, float64(42), req.Variables["userId"])
		assert.Equal(t, []any{float64(2), float64(3)}, req.Variables["statusIds"])
		assert.Equal(t, float64(50), req.Variables["offset"])
		fmt.Fprintf(w, `{"data":{"user_books":[`+userBookJSON+`]}}`, 1, 100)
	})

	page, err := f.FetchCollectionPage(context.Background(), 2)

	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Dune", page.Items[0].Book.Title)
}

func TestFetchAllWishlist_PagesUntilShortPage(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, req capturedRequest) {
		if strings.Contains(req.Query, "me {") {
			_, _ = w.Write([]byte(`{"data":{"me":[{"id":42}]}}`))
			return
		}
		assert.Equal(t, []any{float64(1)}, req.Variables["statusIds"])

		count := 1
		if req.Variables["offset"] == float64(0) {
			count = pageSize
		}
		entries := make([]string, count)
		for i := range entries {
			entries[i] = fmt.Sprintf(userBookJSON, i+1, i+1)
		}
		fmt.Fprintf(w, `{"data":{"user_books":[%s]}}`, strings.Join(entries, ","))
	})

	books, err := f.FetchAllWishlist(context.Background())

	require.NoError(t, err)
	assert.Len(t, books, pageSize+1)
}

func TestFetch_GraphQLErrors(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, req capturedRequest) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid token"}]}`))
	})

	_, err := f.FetchAllCollection(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestToBook(t *testing.T) {
	rating := 4.5
	year := 1965
	pages := 412
	ub := UserBook{
		ID:       9,
		Rating:   &rating,
		StatusID: StatusRead,
		Book: Book{
			ID:          100,
			Title:       "Dune ",
			ReleaseYear: &year,
			Pages:       &pages,
			Image:       &Image{URL: "https://assets.hardcover.app/dune.jpg"},
			Contributions: []Contribution{
				{},
				{Author: struct {
					Name string `json:"name"`
				}{Name: "Frank Herbert"}},
			},
		},
	}

	book, err := ToBook(ub)

	require.NoError(t, err)
	assert.Equal(t, "100", book.ExternalID)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "Frank Herbert", book.Author)
	assert.Equal(t, 1965, book.ReleaseYear)
	assert.Equal(t, 412, book.Pages)
	assert.Equal(t, 4.5, book.Rating)
	assert.Equal(t, "https://assets.hardcover.app/dune.jpg", book.CoverURL)
}

func TestToBook_OptionalFieldsMissing(t *testing.T) {
	book, err := ToBook(UserBook{Book: Book{ID: 5, Title: "Untitled Draft"}})

	require.NoError(t, err)
	assert.Empty(t, book.Author)
	assert.Zero(t, book.ReleaseYear)
	assert.Empty(t, book.CoverURL)

	_, err = ToBook(UserBook{Book: Book{Title: "x"}})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = ToBook(UserBook{Book: Book{ID: 1}})
	assert.ErrorIs(t, err, ErrMissingTitle)
}
