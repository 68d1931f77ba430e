// Package comicinfo parses and serializes the ComicInfo.xml sidecar
// format embedded in CBZ/CBR archives — the de facto metadata standard
// comic readers (and this server) exchange.
package comicinfo

import (
	"encoding/xml"
	"strings"
)

// ComicInfo mirrors the subset of the ComicInfo.xml schema the design
// extracts into MediaMetadata. Fields are plain values: an element absent
// from the XML decodes to its zero value ("" or 0).
type ComicInfo struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	Title       string   `xml:"Title"`
	Series      string   `xml:"Series"`
	Number      string   `xml:"Number"`
	Volume      int      `xml:"Volume"`
	Year        int      `xml:"Year"`
	Genre       string   `xml:"Genre"`
	Summary     string   `xml:"Summary"`
	Writer      string   `xml:"Writer"`
	Penciller   string   `xml:"Penciller"`
	Inker       string   `xml:"Inker"`
	Colorist    string   `xml:"Colorist"`
	AgeRating   string   `xml:"AgeRating"`
	PageCount   int      `xml:"PageCount"`
}

// Parse decodes a ComicInfo.xml payload.
func Parse(data []byte) (*ComicInfo, error) {
	var ci ComicInfo
	if err := xml.Unmarshal(data, &ci); err != nil {
		return nil, err
	}
	return &ci, nil
}

// Serialize re-encodes a ComicInfo back to indented XML.
func Serialize(ci *ComicInfo) ([]byte, error) {
	return xml.MarshalIndent(ci, "", "  ")
}

// ageRatingScale maps ComicInfo.xml's textual AgeRating enum to the
// numeric scale models.MediaMetadata.AgeRating (and the access-control
// composer) use — the conservative end of each named bracket, so the
// same age-restriction comparison the design already does for numeric
// ratings still applies.
var ageRatingScale = map[string]int{
	"Everyone":        0,
	"Everyone 10+":    10,
	"G":               0,
	"Early Childhood":  0,
	"Kids to Adults":  10,
	"PG":              10,
	"Teen":            13,
	"MA15+":           15,
	"M":               17,
	"R18+":            18,
	"Adults Only 18+": 18,
	"X18+":            18,
}

// ExtractedMetadata is the shape processor.ExtractedMetadata wants —
// defined locally to avoid an import cycle (processor imports comicinfo,
// not the other way around), and converted at the processor boundary.
type ExtractedMetadata struct {
	Title     string
	Series    string
	Number    float64
	Volume    int
	Year      int
	Genre     string
	Summary   string
	Creators  []string
	AgeRating int
}

// ToExtractedMetadata flattens writer/penciller/inker/colorist into one
// Creators slice (each name once, in first-seen order) and converts Number's free-text form ("12", "12.5",
// "Annual 1") into a best-effort float, leaving unparsable values at 0 —
// the design treats Number as advisory display data, not a sort key that
// must always resolve.
func ToExtractedMetadata(ci *ComicInfo) *ExtractedMetadata {
	m := &ExtractedMetadata{
		Title:   ci.Title,
		Series:  ci.Series,
		Volume:  ci.Volume,
		Year:    ci.Year,
		Genre:   ci.Genre,
		Summary: ci.Summary,
		Number:  parseNumber(ci.Number),
	}
	seen := make(map[string]bool)
	for _, c := range []string{ci.Writer, ci.Penciller, ci.Inker, ci.Colorist} {
		for _, name := range strings.Split(c, ",") {
			name = strings.TrimSpace(name)
			if name != "" && !seen[name] {
				seen[name] = true
				m.Creators = append(m.Creators, name)
			}
		}
	}
	if rating, ok := ageRatingScale[ci.AgeRating]; ok {
		m.AgeRating = rating
	}
	return m
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	var whole, frac int
	var fracDigits int
	var sawDot, sawDigit bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			sawDigit = true
			if sawDot {
				frac = frac*10 + int(r-'0')
				fracDigits++
			} else {
				whole = whole*10 + int(r-'0')
			}
		case r == '.' && !sawDot:
			sawDot = true
		default:
			if sawDigit {
				// Stop at the first non-numeric rune once digits have
				// been seen ("12a" -> 12), matching display-oriented
				// parsers that tolerate trailing annotations.
				goto done
			}
		}
	}
done:
	if !sawDigit {
		return 0
	}
	value := float64(whole)
	if fracDigits > 0 {
		div := 1.0
		for i := 0; i < fracDigits; i++ {
			div *= 10
		}
		value += float64(frac) / div
	}
	return value
}
