package itunes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Blue Train (Remastered 2003)", "blue train"},
		{"The Beatles", "beatles"},
		{"Simon & Garfunkel", "simon and garfunkel"},
		{"Kind of Blue [Legacy Edition]", "kind of blue"},
		{"  AC/DC  ", "ac dc"},
		{"Sigur Rós", "sigur rós"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.InDelta(t, 0.9, Similarity("blue trains", "blue train"), 0.02)
	assert.Less(t, Similarity("giant steps", "blue train"), DefaultThreshold)
}

func TestMatcher_Best(t *testing.T) {
	results := []Result{
		{CollectionID: 1, ArtistName: "Miles Davis", CollectionName: "Blue Train"},
		{CollectionID: 2, ArtistName: "John Coltrane", CollectionName: "Blue Trane"},
		{CollectionID: 3, ArtistName: "John Coltrane", CollectionName: "Blue Train (Deluxe)"},
		{CollectionID: 4, ArtistName: "John Coltrane", CollectionName: "Giant Steps"},
	}
	m := Matcher{}

	best, ok := m.Best("John Coltrane", "Blue Train", results)

	assert.True(t, ok)
	assert.Equal(t, int64(3), best.CollectionID)
}

func TestMatcher_ArtistFilterRunsFirst(t *testing.T) {
	results := []Result{
		{CollectionID: 1, ArtistName: "Miles Davis", CollectionName: "Blue Train"},
	}

	_, ok := Matcher{}.Best("John Coltrane", "Blue Train", results)
	assert.False(t, ok)
}

func TestMatcher_ArtistPrefix(t *testing.T) {
	results := []Result{
		{CollectionID: 9, ArtistName: "John Coltrane Quartet", CollectionName: "Ballads"},
	}

	best, ok := Matcher{}.Best("John Coltrane", "Ballads", results)
	assert.True(t, ok)
	assert.Equal(t, int64(9), best.CollectionID)
}

func TestMatcher_EmptyInput(t *testing.T) {
	_, ok := Matcher{}.Best("John Coltrane", "", []Result{{ArtistName: "John Coltrane"}})
	assert.False(t, ok)

	_, ok = Matcher{}.Best("John Coltrane", "Blue Train", nil)
	assert.False(t, ok)
}
