package comicinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<ComicInfo>
  <Title>The Long Walk</Title>
  <Series>Strange Tales</Series>
  <Number>12.5</Number>
  <Volume>2</Volume>
  <Year>1999</Year>
  <Genre>Horror</Genre>
  <Writer>Jane Doe, John Smith</Writer>
  <Penciller>Jane Doe</Penciller>
  <AgeRating>Teen</AgeRating>
</ComicInfo>`)

	ci, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "The Long Walk", ci.Title)
	assert.Equal(t, "Strange Tales", ci.Series)
	assert.Equal(t, "12.5", ci.Number)
	assert.Equal(t, 2, ci.Volume)
	assert.Equal(t, 1999, ci.Year)
	assert.Equal(t, "Teen", ci.AgeRating)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("not xml"))
	assert.Error(t, err)
}

func TestSerialize_RoundTrip(t *testing.T) {
	ci := &ComicInfo{Title: "Roundtrip", Series: "Test Series", Volume: 1}
	data, err := Serialize(ci)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, ci.Title, parsed.Title)
	assert.Equal(t, ci.Series, parsed.Series)
	assert.Equal(t, ci.Volume, parsed.Volume)
}

func TestToExtractedMetadata(t *testing.T) {
	ci := &ComicInfo{
		Title:     "Issue One",
		Series:    "Strange Tales",
		Number:    "12.5",
		Volume:    2,
		Year:      1999,
		Genre:     "Horror",
		Summary:   "A story.",
		Writer:    "Jane Doe, John Smith",
		Penciller: "Jane Doe",
		Inker:     "",
		Colorist:  "Alice Roe",
		AgeRating: "Teen",
	}

	m := ToExtractedMetadata(ci)
	assert.Equal(t, "Issue One", m.Title)
	assert.Equal(t, "Strange Tales", m.Series)
	assert.Equal(t, 12.5, m.Number)
	assert.Equal(t, 2, m.Volume)
	assert.Equal(t, 1999, m.Year)
	assert.Equal(t, 13, m.AgeRating)
	assert.ElementsMatch(t, []string{"Jane Doe", "John Smith", "Alice Roe"}, m.Creators)
}

func TestToExtractedMetadata_UnknownAgeRating(t *testing.T) {
	ci := &ComicInfo{AgeRating: "Unrated Nonsense"}
	m := ToExtractedMetadata(ci)
	assert.Equal(t, 0, m.AgeRating)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"whole number", "12", 12},
		{"decimal", "12.5", 12.5},
		{"trailing annotation", "12a", 12},
		{"annual with text prefix", "Annual 1", 1},
		{"empty", "", 0},
		{"whitespace padded", "  7  ", 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseNumber(tc.input))
		})
	}
}
