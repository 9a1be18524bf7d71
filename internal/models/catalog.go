package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Table names for the catalog collections
const (
	TableRecords    = "records"
	TableBoardGames = "board_games"
	TableBooks      = "books"
)

// ExternalIDColumn is the upsert conflict key shared by every catalog table
const ExternalIDColumn = "external_id"

// Record represents a music release synced from Discogs
type Record struct {
	ID                    int64          `db:"id" json:"id"`
	ExternalID            string         `db:"external_id" json:"external_id"`
	Title                 string         `db:"title" json:"title"`
	Artist                string         `db:"artist" json:"artist"`
	Year                  int            `db:"year" json:"year"`
	Label                 string         `db:"label" json:"label"`
	Format                string         `db:"format" json:"format"`
	Genres                pq.StringArray `db:"genres" json:"genres"`
	Styles                pq.StringArray `db:"styles" json:"styles"`
	Rating                int            `db:"rating" json:"rating"`
	DateAdded             sql.NullTime   `db:"date_added" json:"date_added"`
	CoverImageURL         string         `db:"cover_image_url" json:"cover_image_url"`
	CoverImageLocalPath   string         `db:"cover_image_local_path" json:"cover_image_local_path"`
	HighResImageURL       string         `db:"high_res_image_url" json:"high_res_image_url"`
	HighResImageLocalPath string         `db:"high_res_image_local_path" json:"high_res_image_local_path"`
	InCollection          bool           `db:"in_collection" json:"in_collection"`
	InWishlist            bool           `db:"in_wishlist" json:"in_wishlist"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// Collection returns the table the record is stored in
func (Record) Collection() string { return TableRecords }

// Identity returns the unique key used for upserts
func (r Record) Identity() (string, string) { return ExternalIDColumn, r.ExternalID }

// Membership reports which of the user's lists the record belongs to
func (r Record) Membership() (inCollection, inWishlist bool) {
	return r.InCollection, r.InWishlist
}

// WithMembership returns a copy of the record with the list flags replaced
func (r Record) WithMembership(inCollection, inWishlist bool) Record {
	r.InCollection, r.InWishlist = inCollection, inWishlist
	return r
}

// DisplayImage returns the best available image, preferring the high
// resolution local copy over the marketplace cover.
func (r Record) DisplayImage() string {
	return firstNonEmpty(r.HighResImageLocalPath, r.CoverImageLocalPath, r.HighResImageURL, r.CoverImageURL)
}

// BoardGame represents a board game synced from BoardGameGeek
type BoardGame struct {
	ID                 int64     `db:"id" json:"id"`
	ExternalID         string    `db:"external_id" json:"external_id"`
	Name               string    `db:"name" json:"name"`
	YearPublished      int       `db:"year_published" json:"year_published"`
	MinPlayers         int       `db:"min_players" json:"min_players"`
	MaxPlayers         int       `db:"max_players" json:"max_players"`
	PlayingTime        int       `db:"playing_time" json:"playing_time"`
	UserRating         float64   `db:"user_rating" json:"user_rating"`
	NumPlays           int       `db:"num_plays" json:"num_plays"`
	WishlistPriority   int       `db:"wishlist_priority" json:"wishlist_priority"`
	ImageURL           string    `db:"image_url" json:"image_url"`
	ImageLocalPath     string    `db:"image_local_path" json:"image_local_path"`
	ThumbnailURL       string    `db:"thumbnail_url" json:"thumbnail_url"`
	ThumbnailLocalPath string    `db:"thumbnail_local_path" json:"thumbnail_local_path"`
	InCollection       bool      `db:"in_collection" json:"in_collection"`
	InWishlist         bool      `db:"in_wishlist" json:"in_wishlist"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

func (BoardGame) Collection() string { return TableBoardGames }

func (g BoardGame) Identity() (string, string) { return ExternalIDColumn, g.ExternalID }

func (g BoardGame) Membership() (inCollection, inWishlist bool) {
	return g.InCollection, g.InWishlist
}

func (g BoardGame) WithMembership(inCollection, inWishlist bool) BoardGame {
	g.InCollection, g.InWishlist = inCollection, inWishlist
	return g
}

// DisplayImage returns the full image when cached, then the thumbnail
func (g BoardGame) DisplayImage() string {
	return firstNonEmpty(g.ImageLocalPath, g.ThumbnailLocalPath, g.ImageURL, g.ThumbnailURL)
}

// Book represents a book synced from Hardcover
type Book struct {
	ID             int64     `db:"id" json:"id"`
	ExternalID     string    `db:"external_id" json:"external_id"`
	Title          string    `db:"title" json:"title"`
	Author         string    `db:"author" json:"author"`
	ReleaseYear    int       `db:"release_year" json:"release_year"`
	Pages          int       `db:"pages" json:"pages"`
	Rating         float64   `db:"rating" json:"rating"`
	CoverURL       string    `db:"cover_url" json:"cover_url"`
	CoverLocalPath string    `db:"cover_local_path" json:"cover_local_path"`
	InCollection   bool      `db:"in_collection" json:"in_collection"`
	InWishlist     bool      `db:"in_wishlist" json:"in_wishlist"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (Book) Collection() string { return TableBooks }

func (b Book) Identity() (string, string) { return ExternalIDColumn, b.ExternalID }

func (b Book) Membership() (inCollection, inWishlist bool) {
	return b.InCollection, b.InWishlist
}

func (b Book) WithMembership(inCollection, inWishlist bool) Book {
	b.InCollection, b.InWishlist = inCollection, inWishlist
	return b
}

func (b Book) DisplayImage() string {
	return firstNonEmpty(b.CoverLocalPath, b.CoverURL)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
