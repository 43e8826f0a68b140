package internal

import "time"

const (
	SourceLocal = "LOCAL"
	SourceKakao = "KAKAO"
	SourceNaver = "NAVER"
)

type MatchStatus string

const (
	MatchPending        MatchStatus = "PENDING"
	MatchResolvedAuto   MatchStatus = "RESOLVED_AUTO"
	MatchResolvedManual MatchStatus = "RESOLVED_MANUAL"
)

func (s MatchStatus) Resolved() bool {
	return s == MatchResolvedAuto || s == MatchResolvedManual
}

// Candidate is one book-like document from a source. Optional fields are nil
// when the source did not supply them; "" only appears at serialization.
type Candidate struct {
	Source        string         `json:"source"`
	ExternalID    string         `json:"externalId"`
	Title         string         `json:"title"`
	Author        *string        `json:"author"`
	ISBN10        *string        `json:"isbn10"`
	ISBN13        *string        `json:"isbn13"`
	Publisher     *string        `json:"publisher"`
	PublishedDate *PublishedDate `json:"publishedDate"`
	ThumbnailURL  *string        `json:"thumbnailUrl"`
	Score         float64        `json:"score"`
}

type Book struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Author        *string        `json:"author"`
	Publisher     *string        `json:"publisher"`
	ISBN10        *string        `json:"isbn10"`
	ISBN13        *string        `json:"isbn13"`
	PublishedDate *PublishedDate `json:"publishedDate"`
	CoverURL      *string        `json:"coverUrl"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     *time.Time     `json:"deletedAt,omitempty"`
}

type SourceLink struct {
	ID         int64     `json:"id"`
	BookID     int64     `json:"bookId"`
	Source     string    `json:"source"`
	ExternalID string    `json:"externalId"`
	ISBN10     *string   `json:"isbn10"`
	ISBN13     *string   `json:"isbn13"`
	MetaJSON   *string   `json:"metaJson"`
	SyncedAt   time.Time `json:"syncedAt"`
}

type Note struct {
	ID           int64       `json:"id"`
	Sentence     string      `json:"sentence"`
	Comment      *string     `json:"comment"`
	RawTitle     *string     `json:"rawTitle"`
	RawAuthor    *string     `json:"rawAuthor"`
	MatchStatus  MatchStatus `json:"matchStatus"`
	BookID       *int64      `json:"bookId"`
	SourceLinkID *int64      `json:"sourceLinkId"`
	MatchedAt    *time.Time  `json:"matchedAt"`
	RecordedAt   time.Time   `json:"recordedAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type MatchResult struct {
	Best      *Candidate `json:"best"`
	Score     float64    `json:"score"`
	AutoMatch bool       `json:"autoMatch"`
}

type RunOutcome string

const (
	OutcomeSkipped   RunOutcome = "SKIPPED"
	OutcomeLinked    RunOutcome = "LINKED"
	OutcomeUnmatched RunOutcome = "UNMATCHED"
	OutcomeFailed    RunOutcome = "FAILED"
)

type MatchRun struct {
	ID        int64
	TraceID   string
	NoteID    int64
	Outcome   RunOutcome
	Source    *string
	Score     *float64
	Timings   map[string]float64
	CreatedAt time.Time
}

type NoteExportRow struct {
	NoteID         int64
	Sentence       string
	RawTitle       *string
	RawAuthor      *string
	MatchStatus    string
	MatchedAt      *time.Time
	BookID         *int64
	BookTitle      *string
	BookAuthor     *string
	BookISBN13     *string
	LinkSource     *string
	LinkExternalID *string
	LinkMetaJSON   *string
}

// Provenance is the snapshot stored with an auto-link: enough to explain
// or revoke it later.
type Provenance struct {
	Provider  string              `json:"provider"`
	Score     float64             `json:"score"`
	Query     ProvenanceQuery     `json:"query"`
	Candidate ProvenanceCandidate `json:"candidate"`
	Matcher   MatcherInfo         `json:"matcher"`
}

type ProvenanceQuery struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type ProvenanceCandidate struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN10        string `json:"isbn10"`
	ISBN13        string `json:"isbn13"`
	Publisher     string `json:"publisher"`
	PublishedDate string `json:"publishedDate"`
	ThumbnailURL  string `json:"thumbnailUrl"`
	ExternalID    string `json:"externalId"`
}

type MatcherInfo struct {
	Threshold float64        `json:"threshold"`
	Weights   MatcherWeights `json:"weights"`
	Version   string         `json:"version"`
}

type MatcherWeights struct {
	Title  float64 `json:"title"`
	Author float64 `json:"author"`
}
