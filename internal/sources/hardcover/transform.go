package hardcover

import (
	"errors"
	"strconv"
	"strings"

	"github.com/parsascontentcorner/shelfsync/internal/models"
)

var (
	// ErrMissingID is returned for entries without a book id
	ErrMissingID = errors.New("hardcover: entry has no book id")
	// ErrMissingTitle is returned for entries without a title
	ErrMissingTitle = errors.New("hardcover: book has no title")
)

// ToBook converts a shelf entry into a catalog row keyed on the book id.
// List membership is left unset for the caller.
func ToBook(ub UserBook) (models.Book, error) {
	if ub.Book.ID == 0 {
		return models.Book{}, ErrMissingID
	}
	title := strings.TrimSpace(ub.Book.Title)
	if title == "" {
		return models.Book{}, ErrMissingTitle
	}

	book := models.Book{
		ExternalID: strconv.FormatInt(ub.Book.ID, 10),
		Title:      title,
	}
	for _, c := range ub.Book.Contributions {
		if name := strings.TrimSpace(c.Author.Name); name != "" {
			book.Author = name
			break
		}
	}
	if ub.Book.ReleaseYear != nil {
		book.ReleaseYear = *ub.Book.ReleaseYear
	}
	if ub.Book.Pages != nil {
		book.Pages = *ub.Book.Pages
	}
	if ub.Rating != nil {
		book.Rating = *ub.Rating
	}
	if ub.Book.Image != nil {
		book.CoverURL = ub.Book.Image.URL
	}
	return book, nil
}
