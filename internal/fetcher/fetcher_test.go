package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"https://example.com/page", "https://example.com/page"},
		{"  example.com/page  ", "https://example.com/page"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in))
	}
}

func TestExtract(t *testing.T) {
	html := `<html><head>
		<title> Lời dạy Ánh Sáng </title>
		<style>body { color: red; }</style>
		<script>alert("x");</script>
	</head><body>
		<noscript>enable js</noscript>
		<nav>menu menu menu</nav>
		<main><p>Yêu thương &amp; biết ơn&nbsp;mỗi ngày.</p></main>
	</body></html>`

	title, content := Extract(html)
	assert.Equal(t, "Lời dạy Ánh Sáng", title)
	assert.Equal(t, "Yêu thương & biết ơn mỗi ngày.", content)
	assert.NotContains(t, content, "menu")
	assert.NotContains(t, content, "alert")
}

func TestExtractWithoutMainRegion(t *testing.T) {
	title, content := Extract(`<body><p>chỉ có &quot;đoạn văn&quot; thôi</p></body>`)
	assert.Empty(t, title)
	assert.Equal(t, `chỉ có "đoạn văn" thôi`, content)
}

func TestExtractTruncatesLongContent(t *testing.T) {
	_, content := Extract("<p>" + strings.Repeat("a", maxContentChars+100) + "</p>")
	assert.Len(t, []rune(content), maxContentChars+3)
	assert.True(t, strings.HasSuffix(content, "..."))
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.NotEmpty(t, r.Header.Get("Accept"))
		w.Write([]byte(`<html><head><title>Trang chủ</title></head><body><article>nội dung chính</article></body></html>`))
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Trang chủ", result.Title)
	assert.Equal(t, "nội dung chính", result.Content)
	assert.Equal(t, srv.URL, result.URL)
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchEmptyURL(t *testing.T) {
	f := New(5 * time.Second)
	_, err := f.Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "open", f.BreakerState())
}

func TestBreakerHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(5 * time.Second)
	_, err := f.Fetch(ctx, "https://example.com")
	assert.ErrorIs(t, err, context.Canceled)
}
