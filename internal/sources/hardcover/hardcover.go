// Package hardcover fetches a user's shelves from the Hardcover GraphQL API.
package hardcover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/internal/ratelimit"
	"github.com/parsascontentcorner/shelfsync/internal/sources"
)

const (
	hardcoverAPIEndpoint = "https://api.hardcover.app"
	graphqlPath          = "/v1/graphql"
	pageSize             = 50
)

// Reading statuses used by Hardcover
const (
	StatusWantToRead       = 1
	StatusCurrentlyReading = 2
	StatusRead             = 3
)

var (
	collectionStatuses = []int{StatusCurrentlyReading, StatusRead}
	wishlistStatuses   = []int{StatusWantToRead}
)

// ErrNoUser is returned when the token does not resolve to an account
var ErrNoUser = errors.New("hardcover: token is not linked to a user")

const meQuery = `query Me { me { id username } }`

const userBooksQuery = `query UserBooks($userId: Int!, $statusIds: [Int!], $limit: Int!, $offset: Int!) {
  user_books(
    where: {user_id: {_eq: $userId}, status_id: {_in: $statusIds}}
    limit: $limit
    offset: $offset
    order_by: {id: asc}
  ) {
    id
    rating
    status_id
    book {
      id
      title
      release_year
      pages
      image { url }
      contributions { author { name } }
    }
  }
}`

// UserBook is one shelf entry
type UserBook struct {
	ID       int64    `json:"id"`
	Rating   *float64 `json:"rating"`
	StatusID int      `json:"status_id"`
	Book     Book     `json:"book"`
}

// Book is the edition-independent book record
type Book struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	ReleaseYear   *int           `json:"release_year"`
	Pages         *int           `json:"pages"`
	Image         *Image         `json:"image"`
	Contributions []Contribution `json:"contributions"`
}

// Image is a cover reference
type Image struct {
	URL string `json:"url"`
}

// Contribution links a book to an author
type Contribution struct {
	Author struct {
		Name string `json:"name"`
	} `json:"author"`
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type meUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Fetcher reads the shelves of the token's owner
type Fetcher struct {
	client *sources.Client
	logger *zap.Logger

	mu     sync.Mutex
	userID int64
}

// New creates a Hardcover fetcher limited to cfg.RequestsPerMinute calls
func New(cfg config.HardcoverConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = 30 * time.Second

	return &Fetcher{
		client: sources.NewClient(sources.Options{
			Name:       "hardcover",
			BaseURL:    hardcoverAPIEndpoint,
			Gate:       ratelimit.PerMinute("hardcover", cfg.RequestsPerMinute, logger),
			HTTPClient: httpClient,
			Logger:     logger,
		}),
		logger: logger,
	}
}

// SetBaseURL sets a custom base URL for the Hardcover API (used for testing)
func (f *Fetcher) SetBaseURL(baseURL string) {
	f.client.SetBaseURL(baseURL)
}

func (f *Fetcher) query(ctx context.Context, query string, variables map[string]any, out any) error {
	var resp graphqlResponse
	if err := f.client.PostJSON(ctx, graphqlPath, graphqlRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("hardcover graphql error: %s", strings.Join(messages, "; "))
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode hardcover data: %w", err)
	}
	return nil
}

// UserID resolves the account behind the token once and remembers it
func (f *Fetcher) UserID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userID != 0 {
		return f.userID, nil
	}

	var data struct {
		Me json.RawMessage `json:"me"`
	}
	if err := f.query(ctx, meQuery, nil, &data); err != nil {
		return 0, fmt.Errorf("failed to resolve hardcover user: %w", err)
	}

	// me is a list in the public schema but a single object in older deployments
	var users []meUser
	if err := json.Unmarshal(data.Me, &users); err != nil {
		var user meUser
		if err := json.Unmarshal(data.Me, &user); err != nil {
			return 0, fmt.Errorf("failed to decode hardcover user: %w", err)
		}
		users = []meUser{user}
	}
	if len(users) == 0 || users[0].ID == 0 {
		return 0, ErrNoUser
	}

	f.userID = users[0].ID
	f.logger.Debug("resolved hardcover user",
		zap.Int64("user_id", users[0].ID),
		zap.String("username", users[0].Username),
	)
	return f.userID, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, page int, statuses []int) (sources.Page[UserBook], error) {
	userID, err := f.UserID(ctx)
	if err != nil {
		return sources.Page[UserBook]{}, err
	}

	var data struct {
		UserBooks []UserBook `json:"user_books"`
	}
	err = f.query(ctx, userBooksQuery, map[string]any{
		"userId":    userID,
		"statusIds": statuses,
		"limit":     pageSize,
		"offset":    (page - 1) * pageSize,
	}, &data)
	if err != nil {
		return sources.Page[UserBook]{}, fmt.Errorf("failed to fetch hardcover books: %w", err)
	}

	f.logger.Debug("fetched hardcover page",
		zap.Int("page", page),
		zap.Ints("statuses", statuses),
		zap.Int("count", len(data.UserBooks)),
	)

	return sources.Page[UserBook]{
		Items:   data.UserBooks,
		HasMore: len(data.UserBooks) == pageSize,
	}, nil
}

// FetchCollectionPage fetches books being read or already read
func (f *Fetcher) FetchCollectionPage(ctx context.Context, page int) (sources.Page[UserBook], error) {
	return f.fetchPage(ctx, page, collectionStatuses)
}

// FetchWishlistPage fetches books marked want to read
func (f *Fetcher) FetchWishlistPage(ctx context.Context, page int) (sources.Page[UserBook], error) {
	return f.fetchPage(ctx, page, wishlistStatuses)
}

// FetchAllCollection fetches every collection page
func (f *Fetcher) FetchAllCollection(ctx context.Context) ([]UserBook, error) {
	return sources.FetchAll(ctx, f.FetchCollectionPage)
}

// FetchAllWishlist fetches every wishlist page
func (f *Fetcher) FetchAllWishlist(ctx context.Context) ([]UserBook, error) {
	return sources.FetchAll(ctx, f.FetchWishlistPage)
}
