package identity

import (
	"regexp"
	"strconv"
	"strings"

	"habitat_scrooper/models"
	"habitat_scrooper/textnorm"
)

var (
	streetReplacements = map[string]string{
		"calle":       "cl",
		"carrera":     "cra",
		"kra":         "cra",
		"cr":          "cra",
		"avenida":     "av",
		"diagonal":    "dg",
		"transversal": "tv",
		"autopista":   "autop",
		"norte":       "n",
		"sur":         "s",
		"este":        "e",
		"oeste":       "o",
		"apartamento": "apto",
		"apt":         "apto",
		"edificio":    "ed",
		"torre":       "t",
		"interior":    "int",
		"numero":      "no",
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// Key is the exact-repeat identity: folded title, price, area and source.
// Two portals listing the same flat produce different keys.
func Key(p *models.CanonicalProperty) string {
	return strings.Join([]string{
		textnorm.Fold(p.Title),
		strconv.FormatFloat(p.Price, 'f', -1, 64),
		strconv.FormatFloat(p.Area, 'f', -1, 64),
		p.Source,
	}, "|")
}

// NormalizeAddress lowercases, strips accents and punctuation, and
// abbreviates Colombian street nomenclature word by word.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(textnorm.StripAccents(strings.TrimSpace(addr)))
	addr = strings.ReplaceAll(addr, "#", " no ")
	addr = nonAlnumRegex.ReplaceAllString(addr, " ")

	words := strings.Fields(addr)
	for i, w := range words {
		if abbrev, ok := streetReplacements[w]; ok {
			words[i] = abbrev
		}
	}
	return multiSpaceRegex.ReplaceAllString(strings.Join(words, " "), " ")
}
