// Package text turns stored content into indexable word tokens.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	htmlTagRe    = regexp.MustCompile(`(?s)<(script|style)\b.*?</(script|style)>`)
	htmlMarkupRe = regexp.MustCompile(`<[^>]*>`)
	entityRe     = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
)

// ExtractWords tokenizes content into a deduplicated set of lower-cased
// words suitable for the word index. Tokens shorter than two runes are
// dropped.
func ExtractWords(content string) []string {
	seen := make(map[string]struct{})
	var out []string

	words := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		w = strings.ToLower(w)
		if len([]rune(w)) < 2 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// ExtractWordsFromHTML strips markup before tokenizing.
func ExtractWordsFromHTML(html string) []string {
	plain := htmlTagRe.ReplaceAllString(html, " ")
	plain = htmlMarkupRe.ReplaceAllString(plain, " ")
	plain = entityRe.ReplaceAllString(plain, " ")
	return ExtractWords(plain)
}

// IsTextContent reports whether a MIME content type carries indexable
// text. XML-flavored application types count.
func IsTextContent(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	switch ct {
	case "application/json", "application/xml", "application/xhtml+xml", "image/svg+xml":
		return true
	}
	return false
}
