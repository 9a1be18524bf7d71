// Package itunes looks up high resolution album artwork through the
// unauthenticated iTunes Search API.
package itunes

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/internal/ratelimit"
	"github.com/parsascontentcorner/shelfsync/internal/sources"
)

const (
	itunesAPIEndpoint = "https://itunes.apple.com"
	searchLimit       = 10
	thumbnailToken    = "100x100bb"
)

// Result is one album search hit
type Result struct {
	CollectionID   int64  `json:"collectionId"`
	ArtistName     string `json:"artistName"`
	CollectionName string `json:"collectionName"`
	ArtworkURL100  string `json:"artworkUrl100"`
	ReleaseDate    string `json:"releaseDate"`
}

// ReleaseYear returns the year of ReleaseDate, or 0 when unknown
func (r Result) ReleaseYear() int {
	if len(r.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(r.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// Artwork returns the artwork URL scaled to size x size pixels
func (r Result) Artwork(size int) string {
	if r.ArtworkURL100 == "" {
		return ""
	}
	return strings.Replace(r.ArtworkURL100, thumbnailToken, fmt.Sprintf("%dx%dbb", size, size), 1)
}

type searchResponse struct {
	ResultCount int      `json:"resultCount"`
	Results     []Result `json:"results"`
}

// Match is the artwork found for a release
type Match struct {
	ArtworkURL  string
	ReleaseYear int
	Result      Result
}

// Client searches the iTunes catalog
type Client struct {
	client      *sources.Client
	country     string
	artworkSize int
	matcher     Matcher
	logger      *zap.Logger
}

// New creates a client limited to cfg.RequestsPerMinute searches
func New(cfg config.ITunesConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client: sources.NewClient(sources.Options{
			Name:    "itunes",
			BaseURL: itunesAPIEndpoint,
			Gate:    ratelimit.PerMinute("itunes", cfg.RequestsPerMinute, logger),
			Logger:  logger,
		}),
		country:     cfg.Country,
		artworkSize: cfg.ArtworkSize,
		matcher:     Matcher{Threshold: DefaultThreshold},
		logger:      logger,
	}
}

// SetBaseURL sets a custom base URL for the search API (used for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.client.SetBaseURL(baseURL)
}

// Search returns album results for an artist and title
func (c *Client) Search(ctx context.Context, artist, title string) ([]Result, error) {
	term := strings.TrimSpace(artist + " " + bracketed.ReplaceAllString(title, ""))
	query := url.Values{
		"term":    {term},
		"entity":  {"album"},
		"limit":   {strconv.Itoa(searchLimit)},
		"country": {c.country},
	}

	var resp searchResponse
	if err := c.client.GetJSON(ctx, "/search", query, &resp); err != nil {
		return nil, fmt.Errorf("itunes search failed: %w", err)
	}
	return resp.Results, nil
}

// FindArtwork searches for the release and returns the best match. ok is
// false when the search succeeded but nothing matched.
func (c *Client) FindArtwork(ctx context.Context, artist, title string) (match Match, ok bool, err error) {
	results, err := c.Search(ctx, artist, title)
	if err != nil {
		return Match{}, false, err
	}

	best, ok := c.matcher.Best(artist, title, results)
	if !ok || best.ArtworkURL100 == "" {
		c.logger.Debug("no itunes match",
			zap.String("artist", artist),
			zap.String("title", title),
			zap.Int("results", len(results)),
		)
		return Match{}, false, nil
	}

	return Match{
		ArtworkURL:  best.Artwork(c.artworkSize),
		ReleaseYear: best.ReleaseYear(),
		Result:      best,
	}, true, nil
}
