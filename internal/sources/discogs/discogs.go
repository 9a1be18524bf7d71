// Package discogs fetches a user's record collection and wantlist from the
// Discogs marketplace API.
package discogs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/internal/ratelimit"
	"github.com/parsascontentcorner/shelfsync/internal/sources"
)

const (
	discogsAPIEndpoint = "https://api.discogs.com"
	perPage            = 50
)

// Pagination is the paging block of every list response
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// Release is one collection or wantlist entry
type Release struct {
	ID               int64            `json:"id"`
	InstanceID       int64            `json:"instance_id"`
	Rating           int              `json:"rating"`
	DateAdded        string           `json:"date_added"`
	BasicInformation BasicInformation `json:"basic_information"`
}

// BasicInformation holds the release metadata embedded in list responses
type BasicInformation struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	Thumb      string   `json:"thumb"`
	CoverImage string   `json:"cover_image"`
	Artists    []Artist `json:"artists"`
	Labels     []Label  `json:"labels"`
	Formats    []Format `json:"formats"`
	Genres     []string `json:"genres"`
	Styles     []string `json:"styles"`
}

// Artist is a credited artist
type Artist struct {
	Name string `json:"name"`
	Join string `json:"join"`
}

// Label is a release label
type Label struct {
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

// Format describes the physical media
type Format struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty"`
	Descriptions []string `json:"descriptions"`
}

type collectionResponse struct {
	Pagination Pagination `json:"pagination"`
	Releases   []Release  `json:"releases"`
}

type wantsResponse struct {
	Pagination Pagination `json:"pagination"`
	Wants      []Release  `json:"wants"`
}

// Fetcher reads one user's lists
type Fetcher struct {
	client   *sources.Client
	username string
	token    string
	logger   *zap.Logger
}

// New creates a Discogs fetcher spaced by cfg.RequestDelay
func New(cfg config.DiscogsConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: sources.NewClient(sources.Options{
			Name:    "discogs",
			BaseURL: discogsAPIEndpoint,
			Gate:    ratelimit.NewFixedInterval("discogs", cfg.RequestDelay, logger),
			Header:  authHeader(cfg.Token),
			Logger:  logger,
		}),
		username: cfg.Username,
		token:    cfg.Token,
		logger:   logger,
	}
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Discogs token="+token)
	}
	return h
}

// SetBaseURL sets a custom base URL for the Discogs API (used for testing)
func (f *Fetcher) SetBaseURL(baseURL string) {
	f.client.SetBaseURL(baseURL)
}

// ImageHeader returns the headers cover downloads need
func (f *Fetcher) ImageHeader() http.Header {
	return authHeader(f.token)
}

func pageQuery(page int) url.Values {
	return url.Values{
		"page":       {strconv.Itoa(page)},
		"per_page":   {strconv.Itoa(perPage)},
		"sort":       {"added"},
		"sort_order": {"desc"},
	}
}

// FetchCollectionPage fetches one page of the "All" collection folder
func (f *Fetcher) FetchCollectionPage(ctx context.Context, page int) (sources.Page[Release], error) {
	var resp collectionResponse
	path := fmt.Sprintf("/users/%s/collection/folders/0/releases", url.PathEscape(f.username))
	if err := f.client.GetJSON(ctx, path, pageQuery(page), &resp); err != nil {
		return sources.Page[Release]{}, fmt.Errorf("failed to fetch discogs collection: %w", err)
	}

	f.logger.Debug("fetched discogs collection page",
		zap.Int("page", resp.Pagination.Page),
		zap.Int("pages", resp.Pagination.Pages),
		zap.Int("count", len(resp.Releases)),
	)

	return sources.Page[Release]{
		Items:   resp.Releases,
		HasMore: resp.Pagination.Page < resp.Pagination.Pages,
	}, nil
}

// FetchWishlistPage fetches one page of the wantlist
func (f *Fetcher) FetchWishlistPage(ctx context.Context, page int) (sources.Page[Release], error) {
	var resp wantsResponse
	path := fmt.Sprintf("/users/%s/wants", url.PathEscape(f.username))
	if err := f.client.GetJSON(ctx, path, pageQuery(page), &resp); err != nil {
		return sources.Page[Release]{}, fmt.Errorf("failed to fetch discogs wantlist: %w", err)
	}

	f.logger.Debug("fetched discogs wantlist page",
		zap.Int("page", resp.Pagination.Page),
		zap.Int("pages", resp.Pagination.Pages),
		zap.Int("count", len(resp.Wants)),
	)

	return sources.Page[Release]{
		Items:   resp.Wants,
		HasMore: resp.Pagination.Page < resp.Pagination.Pages,
	}, nil
}

// FetchAllCollection fetches every collection page
func (f *Fetcher) FetchAllCollection(ctx context.Context) ([]Release, error) {
	return sources.FetchAll(ctx, f.FetchCollectionPage)
}

// FetchAllWishlist fetches every wantlist page
func (f *Fetcher) FetchAllWishlist(ctx context.Context) ([]Release, error) {
	return sources.FetchAll(ctx, f.FetchWishlistPage)
}
