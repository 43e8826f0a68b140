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

type Naver struct {
	client *Client
}

type naverResponse struct {
	Items []naverItem `json:"items"`
}

type naverItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Image     string `json:"image"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	Pubdate   string `json:"pubdate"`
	ISBN      string `json:"isbn"`
}

func NewNaver(cfg config.Config) (*Naver, error) {
	if err := cfg.Require("NAVER_CLIENT_ID", cfg.NaverClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("NAVER_CLIENT_SECRET", cfg.NaverClientSecret); err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("X-Naver-Client-Id", cfg.NaverClientID)
	headers.Set("X-Naver-Client-Secret", cfg.NaverClientSecret)
	return &Naver{client: newClient("naver", cfg.NaverBaseURL, headers, cfg.ProviderTimeoutMs, cfg.ProviderRateRPS)}, nil
}

func (n *Naver) Name() string {
	return internal.SourceNaver
}

func (n *Naver) Search(ctx context.Context, title, author string, limit int) Result {
	query := strings.TrimSpace(title)
	if strings.TrimSpace(author) != "" {
		query += " " + strings.TrimSpace(author)
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(clampLimit(limit, 1, 100)))
	params.Set("sort", "sim")

	var resp naverResponse
	if err := n.client.fetchJSON(ctx, params, &resp); err != nil {
		return failed(n.Name(), err)
	}

	out := make([]internal.Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if c, ok := naverCandidate(item); ok {
			out = append(out, c)
		}
	}
	return Result{Source: n.Name(), Candidates: out}
}

func naverCandidate(item naverItem) (internal.Candidate, bool) {
	title := util.StripHTML(item.Title)
	if title == "" {
		return internal.Candidate{}, false
	}

	// multiple authors arrive as "a^b"
	author := joinAuthors(strings.Split(item.Author, "^"))

	c := internal.Candidate{
		Source:        internal.SourceNaver,
		Title:         title,
		Author:        util.NonEmpty(author),
		Publisher:     util.NonEmpty(util.StripHTML(item.Publisher)),
		PublishedDate: internal.ParsePublishedDate(item.Pubdate),
		ThumbnailURL:  util.NonEmpty(item.Image),
	}
	fillISBN(&c, item.ISBN)
	c.ExternalID = externalID(item.Link, c)
	return c, true
}
