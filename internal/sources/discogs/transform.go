package discogs

import (
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/parsascontentcorner/shelfsync/internal/models"
)

var (
	// ErrMissingID is returned for entries without a release id
	ErrMissingID = errors.New("discogs: release has no id")
	// ErrMissingTitle is returned for entries without a title
	ErrMissingTitle = errors.New("discogs: release has no title")
)

// Discogs disambiguates artists sharing a name with a numeric suffix, e.g. "Nirvana (2)"
var artistSuffix = regexp.MustCompile(`\s+\(\d+\)$`)

// ToRecord converts a list entry into a catalog record. List membership is
// left unset for the caller.
func ToRecord(r Release) (models.Record, error) {
	info := r.BasicInformation

	id := info.ID
	if id == 0 {
		id = r.ID
	}
	if id == 0 {
		return models.Record{}, ErrMissingID
	}

	title := strings.TrimSpace(info.Title)
	if title == "" {
		return models.Record{}, ErrMissingTitle
	}

	record := models.Record{
		ExternalID:    strconv.FormatInt(id, 10),
		Title:         title,
		Artist:        artistName(info.Artists),
		Year:          info.Year,
		Format:        formatName(info.Formats),
		Rating:        r.Rating,
		CoverImageURL: coverURL(info),
	}

	if len(info.Labels) > 0 {
		record.Label = strings.TrimSpace(info.Labels[0].Name)
	}
	if len(info.Genres) > 0 {
		record.Genres = pq.StringArray(info.Genres)
	}
	if len(info.Styles) > 0 {
		record.Styles = pq.StringArray(info.Styles)
	}
	if added, err := time.Parse(time.RFC3339, r.DateAdded); err == nil {
		record.DateAdded = sql.NullTime{Time: added.UTC(), Valid: true}
	}

	return record, nil
}

func artistName(artists []Artist) string {
	var b strings.Builder
	for i, a := range artists {
		b.WriteString(artistSuffix.ReplaceAllString(strings.TrimSpace(a.Name), ""))
		if i == len(artists)-1 {
			break
		}
		join := strings.TrimSpace(a.Join)
		switch join {
		case "", ",":
			b.WriteString(", ")
		default:
			b.WriteString(" " + join + " ")
		}
	}
	return b.String()
}

func formatName(formats []Format) string {
	if len(formats) == 0 {
		return ""
	}
	parts := append([]string{formats[0].Name}, formats[0].Descriptions...)
	return strings.Join(parts, ", ")
}

func coverURL(info BasicInformation) string {
	for _, u := range []string{info.CoverImage, info.Thumb} {
		// Releases without artwork point at a placeholder
		if u != "" && !strings.HasSuffix(u, "spacer.gif") {
			return u
		}
	}
	return ""
}
