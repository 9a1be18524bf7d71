package bgg

import (
	"errors"
	"strconv"
	"strings"

	"github.com/parsascontentcorner/shelfsync/internal/models"
)

var (
	// ErrMissingID is returned for items without an object id
	ErrMissingID = errors.New("bgg: item has no object id")
	// ErrMissingName is returned for items without a name
	ErrMissingName = errors.New("bgg: item has no name")
)

// ToBoardGame converts a collection item into a catalog row. List
// membership is left unset for the caller.
func ToBoardGame(item Item) (models.BoardGame, error) {
	if item.ObjectID == 0 {
		return models.BoardGame{}, ErrMissingID
	}
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return models.BoardGame{}, ErrMissingName
	}

	game := models.BoardGame{
		ExternalID:       strconv.FormatInt(item.ObjectID, 10),
		Name:             name,
		YearPublished:    item.YearPublished,
		MinPlayers:       item.Stats.MinPlayers,
		MaxPlayers:       item.Stats.MaxPlayers,
		PlayingTime:      item.Stats.PlayingTime,
		NumPlays:         item.NumPlays,
		WishlistPriority: item.Status.WishlistPriority,
		ImageURL:         absoluteURL(item.Image),
		ThumbnailURL:     absoluteURL(item.Thumbnail),
	}
	if rating, err := strconv.ParseFloat(item.Stats.Rating.Value, 64); err == nil {
		game.UserRating = rating
	}
	return game, nil
}

// BGG still serves some image links protocol-relative
func absoluteURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
