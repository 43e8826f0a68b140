package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"readingnotes/internal"
	"readingnotes/internal/config"
	"readingnotes/internal/util"
)

type Kakao struct {
	client *Client
}

type kakaoResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

type kakaoDocument struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	URL       string   `json:"url"`
	ISBN      string   `json:"isbn"`
	Datetime  string   `json:"datetime"`
	Publisher string   `json:"publisher"`
	Thumbnail string   `json:"thumbnail"`
}

func NewKakao(cfg config.Config) (*Kakao, error) {
	if err := cfg.Require("KAKAO_REST_API_KEY", cfg.KakaoRESTAPIKey); err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "KakaoAK "+cfg.KakaoRESTAPIKey)
	return &Kakao{client: newClient("kakao", cfg.KakaoBaseURL, headers, cfg.ProviderTimeoutMs, cfg.ProviderRateRPS)}, nil
}

func (k *Kakao) Name() string {
	return internal.SourceKakao
}

func (k *Kakao) Search(ctx context.Context, title, author string, limit int) Result {
	query := `"` + strings.TrimSpace(title) + `"`
	if strings.TrimSpace(author) != "" {
		query += ` "` + strings.TrimSpace(author) + `"`
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("size", strconv.Itoa(clampLimit(limit, 1, 50)))
	params.Set("sort", "accuracy")

	var resp kakaoResponse
	if err := k.client.fetchJSON(ctx, params, &resp); err != nil {
		return failed(k.Name(), err)
	}

	out := make([]internal.Candidate, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		if c, ok := kakaoCandidate(doc); ok {
			out = append(out, c)
		}
	}
	return Result{Source: k.Name(), Candidates: out}
}

func kakaoCandidate(doc kakaoDocument) (internal.Candidate, bool) {
	title := util.StripHTML(doc.Title)
	if title == "" {
		return internal.Candidate{}, false
	}

	c := internal.Candidate{
		Source:        internal.SourceKakao,
		Title:         title,
		Author:        util.NonEmpty(joinAuthors(doc.Authors)),
		Publisher:     util.NonEmpty(util.StripHTML(doc.Publisher)),
		PublishedDate: internal.ParsePublishedDate(doc.Datetime),
		ThumbnailURL:  util.NonEmpty(doc.Thumbnail),
	}
	fillISBN(&c, doc.ISBN)
	c.ExternalID = externalID(doc.URL, c)
	return c, true
}
