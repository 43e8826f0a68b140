package catalog

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingnotes/internal"
	"readingnotes/internal/config"
	"readingnotes/internal/storage"
	"readingnotes/internal/util"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testConfig() config.Config {
	return config.Config{
		BookProviders:     []string{"KAKAO", "NAVER"},
		KakaoBaseURL:      "https://kakao.test/v3/search/book",
		KakaoRESTAPIKey:   "kakao-key",
		NaverBaseURL:      "https://naver.test/v1/search/book.json",
		NaverClientID:     "naver-id",
		NaverClientSecret: "naver-secret",
		ProviderTimeoutMs: 1000,
		ProviderRateRPS:   1000,
	}
}

func TestKakaoSearchMapsDocuments(t *testing.T) {
	kakao, err := NewKakao(testConfig())
	require.NoError(t, err)

	kakao.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "/v3/search/book", r.URL.Path)
			assert.Equal(t, "KakaoAK kakao-key", r.Header.Get("Authorization"))
			assert.Equal(t, `"클린 코드" "로버트 마틴"`, r.URL.Query().Get("query"))
			assert.Equal(t, "50", r.URL.Query().Get("size"))
			assert.Equal(t, "accuracy", r.URL.Query().Get("sort"))
			return jsonResponse(http.StatusOK, `{"documents":[
				{"title":"클린 코드: 애자일 소프트웨어 장인 정신","authors":["로버트 C. 마틴"," "],"url":"https://search.daum.net/book?isbn=1",
				 "isbn":"8966260950 9788966260959","datetime":"2013-12-24T00:00:00.000+09:00","publisher":"인사이트","thumbnail":""},
				{"title":"   ","authors":["nobody"],"isbn":"1234567890"},
				{"title":"무제","authors":[],"url":"","isbn":" 9781234567897 ","datetime":""}
			]}`), nil
		}),
	}

	res := kakao.Search(context.Background(), "클린 코드", "로버트 마틴", 500)
	require.False(t, res.Failed())
	require.Len(t, res.Candidates, 2)

	first := res.Candidates[0]
	assert.Equal(t, internal.SourceKakao, first.Source)
	assert.Equal(t, "https://search.daum.net/book?isbn=1", first.ExternalID)
	assert.Equal(t, "로버트 C. 마틴", *first.Author)
	assert.Equal(t, "8966260950", *first.ISBN10)
	assert.Equal(t, "9788966260959", *first.ISBN13)
	assert.Equal(t, "2013-12-24", first.PublishedDate.String())
	assert.Nil(t, first.ThumbnailURL)
	assert.Zero(t, first.Score)

	second := res.Candidates[1]
	assert.Equal(t, "9781234567897", second.ExternalID)
	assert.Nil(t, second.Author)
	assert.Nil(t, second.ISBN10)
	assert.Nil(t, second.PublishedDate)
}

func TestKakaoQueryWithoutAuthorAndMinimumSize(t *testing.T) {
	kakao, err := NewKakao(testConfig())
	require.NoError(t, err)
	kakao.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, `"데미안"`, r.URL.Query().Get("query"))
			assert.Equal(t, "1", r.URL.Query().Get("size"))
			return jsonResponse(http.StatusOK, `{"documents":[]}`), nil
		}),
	}

	res := kakao.Search(context.Background(), "데미안", "", 0)
	assert.False(t, res.Failed())
	assert.True(t, res.Empty())
}

func TestNaverSearchMapsItems(t *testing.T) {
	naver, err := NewNaver(testConfig())
	require.NoError(t, err)

	naver.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "naver-id", r.Header.Get("X-Naver-Client-Id"))
			assert.Equal(t, "naver-secret", r.Header.Get("X-Naver-Client-Secret"))
			assert.Equal(t, "채식주의자 한강", r.URL.Query().Get("query"))
			assert.Equal(t, "100", r.URL.Query().Get("display"))
			assert.Equal(t, "sim", r.URL.Query().Get("sort"))
			return jsonResponse(http.StatusOK, `{"items":[
				{"title":"<b>채식주의자</b>","link":"https://search.shopping.naver.com/book/1","image":"https://img/1.jpg",
				 "author":"<b>한강</b>^김영하","publisher":"창비","pubdate":"20071030","isbn":"9788936433598"},
				{"title":"","link":"https://x","isbn":"9780000000000"}
			]}`), nil
		}),
	}

	res := naver.Search(context.Background(), "채식주의자", "한강", 1000)
	require.False(t, res.Failed())
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, internal.SourceNaver, c.Source)
	assert.Equal(t, "채식주의자", c.Title)
	assert.Equal(t, "한강, 김영하", *c.Author)
	assert.Equal(t, "창비", *c.Publisher)
	assert.Equal(t, "2007-10-30", c.PublishedDate.String())
	assert.Equal(t, "https://img/1.jpg", *c.ThumbnailURL)
	assert.Equal(t, "https://search.shopping.naver.com/book/1", c.ExternalID)
	assert.Nil(t, c.ISBN10)
	assert.Equal(t, "9788936433598", *c.ISBN13)
}

func TestProviderErrorIsSingleAttempt(t *testing.T) {
	naver, err := NewNaver(testConfig())
	require.NoError(t, err)

	calls := 0
	naver.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(http.StatusServiceUnavailable, `{"errorMessage":"busy"}`), nil
		}),
	}

	res := naver.Search(context.Background(), "채식주의자", "한강", 10)
	assert.True(t, res.Failed())
	assert.True(t, res.Empty())
	assert.Contains(t, res.Err.Error(), "status=503")
	assert.Equal(t, 1, calls)
}

func TestProviderMalformedBodyFails(t *testing.T) {
	kakao, err := NewKakao(testConfig())
	require.NoError(t, err)
	kakao.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `<html>`), nil
		}),
	}

	res := kakao.Search(context.Background(), "데미안", "헤세", 10)
	assert.True(t, res.Failed())
}

func TestNewProvidersFollowsConfiguredOrder(t *testing.T) {
	cfg := testConfig()
	cfg.BookProviders = []string{"NAVER", "KAKAO", "NAVER"}

	sources, err := NewProviders(cfg)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, internal.SourceNaver, sources[0].Name())
	assert.Equal(t, internal.SourceKakao, sources[1].Name())

	cfg.BookProviders = []string{"KAKAO", "ALADIN"}
	_, err = NewProviders(cfg)
	assert.Error(t, err)

	cfg.BookProviders = []string{"KAKAO"}
	cfg.KakaoRESTAPIKey = ""
	_, err = NewProviders(cfg)
	assert.Error(t, err)
}

func TestLocalSearchFiltersBySimilarity(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clean, err := db.InsertBook(ctx, internal.Book{Title: "클린 코드", Author: util.StringPtr("로버트 C. 마틴"), ISBN13: util.StringPtr("9788966260959")})
	require.NoError(t, err)
	_, err = db.InsertBook(ctx, internal.Book{Title: "클린룸 가이드북 제3판", Author: util.StringPtr("김철수")})
	require.NoError(t, err)

	local := NewLocal(db)
	res := local.Search(ctx, "클린 코드", "로버트 C. 마틴", 10)
	require.False(t, res.Failed())
	require.NotEmpty(t, res.Candidates)

	c := res.Candidates[0]
	assert.Equal(t, internal.SourceLocal, c.Source)
	assert.Equal(t, "9788966260959", *c.ISBN13)
	assert.Equal(t, clean.ID, mustParseID(t, c.ExternalID))

	limited := local.Search(ctx, "클린", "", 1)
	assert.Len(t, limited.Candidates, 1)

	none := local.Search(ctx, "전혀 다른 책", "누군가", 10)
	assert.True(t, none.Empty())
}

func mustParseID(t *testing.T, s string) int64 {
	t.Helper()
	id, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return id
}

func TestRateLimiterHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(1)
	require.NoError(t, limiter.WaitTurn(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, limiter.WaitTurn(ctx), context.Canceled)
}
