// Package bgg fetches a user's board game collection and wishlist from the
// BoardGameGeek XML API.
package bgg

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/internal/ratelimit"
	"github.com/parsascontentcorner/shelfsync/internal/sources"
)

const (
	bggAPIEndpoint   = "https://boardgamegeek.com"
	collectionPath   = "/xmlapi2/collection"
	maxQueuedRetries = 5
)

// ErrQueued is returned while BGG is still preparing the collection export
var ErrQueued = errors.New("bgg: collection request queued")

// Item is one collection entry
type Item struct {
	ObjectID      int64  `xml:"objectid,attr"`
	Subtype       string `xml:"subtype,attr"`
	Name          string `xml:"name"`
	YearPublished int    `xml:"yearpublished"`
	Image         string `xml:"image"`
	Thumbnail     string `xml:"thumbnail"`
	NumPlays      int    `xml:"numplays"`
	Stats         Stats  `xml:"stats"`
	Status        Status `xml:"status"`
}

// Stats holds the game details requested with stats=1
type Stats struct {
	MinPlayers  int    `xml:"minplayers,attr"`
	MaxPlayers  int    `xml:"maxplayers,attr"`
	PlayingTime int    `xml:"playingtime,attr"`
	Rating      Rating `xml:"rating"`
}

// Rating is the user's own rating; "N/A" when unrated
type Rating struct {
	Value string `xml:"value,attr"`
}

// Status holds the user's list flags for the game
type Status struct {
	Own              int `xml:"own,attr"`
	Wishlist         int `xml:"wishlist,attr"`
	WishlistPriority int `xml:"wishlistpriority,attr"`
}

type collection struct {
	XMLName    xml.Name `xml:"items"`
	TotalItems int      `xml:"totalitems,attr"`
	Items      []Item   `xml:"item"`
}

type apiErrors struct {
	Errors []struct {
		Message string `xml:"message"`
	} `xml:"error"`
}

// Fetcher reads one user's lists
type Fetcher struct {
	client      *sources.Client
	username    string
	queuedDelay time.Duration
	logger      *zap.Logger
}

// New creates a BGG fetcher. Requests are spaced by cfg.RequestDelay and
// carry cfg.Token as a bearer token when set.
func New(cfg config.BGGConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	var httpClient *http.Client
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = 30 * time.Second
	}

	return &Fetcher{
		client: sources.NewClient(sources.Options{
			Name:       "bgg",
			BaseURL:    bggAPIEndpoint,
			Gate:       ratelimit.NewFixedInterval("bgg", cfg.RequestDelay, logger),
			HTTPClient: httpClient,
			Logger:     logger,
		}),
		username:    cfg.Username,
		queuedDelay: 5 * time.Second,
		logger:      logger,
	}
}

// SetBaseURL sets a custom base URL for the BGG API (used for testing)
func (f *Fetcher) SetBaseURL(baseURL string) {
	f.client.SetBaseURL(baseURL)
}

// SetQueuedDelay changes the wait between polls of a queued export
func (f *Fetcher) SetQueuedDelay(d time.Duration) {
	f.queuedDelay = d
}

// FetchCollectionPage returns the owned games. BGG answers with the whole
// list at once, so only page 1 has items.
func (f *Fetcher) FetchCollectionPage(ctx context.Context, page int) (sources.Page[Item], error) {
	return f.fetchPage(ctx, page, url.Values{"own": {"1"}})
}

// FetchWishlistPage returns the wishlisted games
func (f *Fetcher) FetchWishlistPage(ctx context.Context, page int) (sources.Page[Item], error) {
	return f.fetchPage(ctx, page, url.Values{"wishlist": {"1"}})
}

// FetchAllCollection fetches the owned games
func (f *Fetcher) FetchAllCollection(ctx context.Context) ([]Item, error) {
	return sources.FetchAll(ctx, f.FetchCollectionPage)
}

// FetchAllWishlist fetches the wishlisted games
func (f *Fetcher) FetchAllWishlist(ctx context.Context) ([]Item, error) {
	return sources.FetchAll(ctx, f.FetchWishlistPage)
}

func (f *Fetcher) fetchPage(ctx context.Context, page int, filter url.Values) (sources.Page[Item], error) {
	if page > 1 {
		return sources.Page[Item]{}, nil
	}

	query := url.Values{
		"username":       {f.username},
		"stats":          {"1"},
		"excludesubtype": {"boardgameexpansion"},
	}
	for k, v := range filter {
		query[k] = v
	}

	var items []Item
	attempt := 0
	op := func() error {
		attempt++
		resp, err := f.client.Do(ctx, sources.Request{Path: collectionPath, Query: query})
		if err != nil {
			return backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusAccepted {
			f.logger.Debug("bgg collection export queued, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", f.queuedDelay),
			)
			return ErrQueued
		}

		parsed, err := parseCollection(resp.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		items = parsed
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(f.queuedDelay), maxQueuedRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return sources.Page[Item]{}, fmt.Errorf("failed to fetch bgg collection: %w", err)
	}

	f.logger.Debug("fetched bgg collection",
		zap.Any("filter", filter),
		zap.Int("count", len(items)),
	)

	return sources.Page[Item]{Items: items, HasMore: false}, nil
}

func parseCollection(body []byte) ([]Item, error) {
	if bytes.Contains(body, []byte("<errors>")) {
		var apiErr apiErrors
		if err := xml.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
			messages := make([]string, 0, len(apiErr.Errors))
			for _, e := range apiErr.Errors {
				messages = append(messages, strings.TrimSpace(e.Message))
			}
			return nil, fmt.Errorf("bgg API error: %s", strings.Join(messages, "; "))
		}
	}

	var c collection
	if err := xml.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("failed to decode bgg collection: %w", err)
	}
	return c.Items, nil
}
