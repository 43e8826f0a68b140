package util

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

var (
	reParenOrBracket = regexp.MustCompile(`[\(\[].*?[\)\]]`)
	reTitleTrailer   = regexp.MustCompile(`\s*[:：\-|–—].*$`)
	rePunct          = regexp.MustCompile(`[[:punct:]]+`)
	reSpaces         = regexp.MustCompile(`\s+`)
	reAuthorSep      = regexp.MustCompile(`\s*[,/·&;^]\s*`)
	reISBNSep        = regexp.MustCompile(`[\s,]+`)
	reNonISBN        = regexp.MustCompile(`[^0-9X]`)
	reTag            = regexp.MustCompile(`<[^>]*>`)
)

// Trailing role words that follow a name: "et al.", "by", "trans.", "ed." and friends.
var authorStopwords = []string{"지음", "엮음", "옮김", "외", "저", "역", "편"}

// NormalizeTitle drops bracketed subtitles and anything after a colon or dash,
// then applies the same folding as the author field.
func NormalizeTitle(s string) string {
	if s == "" {
		return ""
	}
	t := reParenOrBracket.ReplaceAllString(s, " ")
	t = strings.TrimSpace(reSpaces.ReplaceAllString(t, " "))
	t = strings.TrimSpace(reTitleTrailer.ReplaceAllString(t, ""))
	return baseNorm(t)
}

func NormalizeAuthor(s string) string {
	if s == "" {
		return ""
	}
	return baseNorm(s)
}

func baseNorm(s string) string {
	t := strings.ToLower(norm.NFC.String(s))
	t = rePunct.ReplaceAllString(t, " ")
	t = reSpaces.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// AuthorTokens splits an author field into a set of names with role
// annotations removed. Separators are taken from the composed, lowercased
// field before punctuation folding so "A, B" yields two tokens.
func AuthorTokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	folded := strings.ToLower(norm.NFC.String(s))
	for _, tok := range reAuthorSep.Split(folded, -1) {
		tok = strings.TrimSpace(reParenOrBracket.ReplaceAllString(tok, ""))
		for _, stop := range authorStopwords {
			tok = strings.TrimSpace(strings.TrimSuffix(tok, stop))
		}
		tok = baseNorm(tok)
		if tok == "" {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func AuthorsOverlap(a, b string) bool {
	as := AuthorTokens(a)
	if len(as) == 0 {
		return false
	}
	for tok := range AuthorTokens(b) {
		if _, ok := as[tok]; ok {
			return true
		}
	}
	return false
}

// Prefix returns the first n runes of an already normalized string.
func Prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SplitISBN picks the first 10- and 13-character tokens from a field like
// "8966260950 9788966260959". Tokens of other lengths are discarded.
func SplitISBN(raw string) (isbn10, isbn13 string) {
	for _, tok := range reISBNSep.Split(strings.TrimSpace(raw), -1) {
		clean := CleanISBN(tok)
		switch len(clean) {
		case 10:
			if isbn10 == "" {
				isbn10 = clean
			}
		case 13:
			if isbn13 == "" {
				isbn13 = clean
			}
		}
	}
	return isbn10, isbn13
}

func CleanISBN(tok string) string {
	return reNonISBN.ReplaceAllString(strings.ToUpper(tok), "")
}

// StripHTML returns the text content of a fragment such as "<b>클린</b> 코드".
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(reTag.ReplaceAllString(s, ""))
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(doc.Text(), " "))
}

func NormalizeSpaces(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

func StringPtr(s string) *string {
	return &s
}

// NonEmpty returns nil for blank strings so optional fields stay absent.
func NonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
