package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "colon subtitle", input: "클린 코드: 애자일 소프트웨어 장인 정신", want: "클린 코드"},
		{name: "fullwidth colon", input: "데미안：헤르만 헤세", want: "데미안"},
		{name: "dash subtitle", input: "Refactoring - Improving the Design", want: "refactoring"},
		{name: "parenthesized edition", input: "Clean Code (Korean Edition)", want: "clean code"},
		{name: "bracketed volume", input: "[세트] 해리 포터 1", want: "해리 포터 1"},
		{name: "punctuation folded", input: "  Go!  in   Action. ", want: "go in action"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTitle(tc.input))
		})
	}
}

func TestNormalizeTitleComposesHangul(t *testing.T) {
	decomposed := "\u1106\u1161\u11af"
	assert.Equal(t, "말", NormalizeTitle(decomposed))
}

func TestNormalizeAuthorKeepsBracketedText(t *testing.T) {
	assert.Equal(t, "로버트 c 마틴 지음", NormalizeAuthor("로버트 C. 마틴 (지음)"))
}

func TestAuthorTokens(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single", input: "로버트 마틴", want: []string{"로버트 마틴"}},
		{name: "role suffixes", input: "로버트 C. 마틴 지음, 박재호 옮김", want: []string{"로버트 c 마틴", "박재호"}},
		{name: "parenthesized role", input: "남궁성(지음)", want: []string{"남궁성"}},
		{name: "middle dot and slash", input: "Kernighan · Ritchie / Pike", want: []string{"kernighan", "ritchie", "pike"}},
		{name: "caret separated", input: "한강^김영하", want: []string{"한강", "김영하"}},
		{name: "only stopwords", input: "외", want: []string{}},
		{name: "blank", input: "  ", want: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AuthorTokens(tc.input)
			keys := make([]string, 0, len(got))
			for k := range got {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tc.want, keys)
		})
	}
}

func TestAuthorsOverlap(t *testing.T) {
	assert.True(t, AuthorsOverlap("로버트 마틴", "로버트 마틴 저"))
	assert.True(t, AuthorsOverlap("박재호, 이해영", "이해영 옮김"))
	assert.False(t, AuthorsOverlap("로버트 마틴", "마틴 파울러"))
	assert.False(t, AuthorsOverlap("", "로버트 마틴"))
}

func TestSplitISBN(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		want10 string
		want13 string
	}{
		{name: "both", input: "1234567890 9781234567897", want10: "1234567890", want13: "9781234567897"},
		{name: "comma separated", input: "9781234567897,1234567890", want10: "1234567890", want13: "9781234567897"},
		{name: "hyphenated", input: "89-6626-095-0", want10: "8966260950"},
		{name: "lowercase check digit", input: "123456789x", want10: "123456789X"},
		{name: "first wins", input: "1111111111 2222222222", want10: "1111111111"},
		{name: "odd lengths dropped", input: "12345 978123", want10: "", want13: ""},
		{name: "empty", input: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got10, got13 := SplitISBN(tc.input)
			assert.Equal(t, tc.want10, got10)
			assert.Equal(t, tc.want13, got13)
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "클린 코드", StripHTML("<b>클린</b> 코드"))
	assert.Equal(t, "A & B", StripHTML("A &amp; B"))
	assert.Equal(t, "plain", StripHTML(" plain "))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "클린", Prefix("클린 코드", 2))
	assert.Equal(t, "a", Prefix("a", 2))
	assert.Equal(t, "", Prefix("", 2))
}

func TestNonEmpty(t *testing.T) {
	assert.Nil(t, NonEmpty("   "))
	assert.Equal(t, "x", *NonEmpty(" x "))
}
