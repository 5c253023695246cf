// Package fetcher downloads web pages and reduces them to plain text so
// admins can import external teachings into the knowledge base.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrEmptyURL is returned when no URL was supplied.
var ErrEmptyURL = errors.New("fetcher: URL is required")

// maxContentChars caps the extracted text length.
const maxContentChars = 50000

// maxBodyBytes caps how much of the response body is read.
const maxBodyBytes = 5 << 20

// Browser-like request headers; several sites refuse requests without them.
const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLang   = "en-US,en;q=0.5"
)

var (
	titleRe    = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	scriptRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptRe = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	mainRe     = regexp.MustCompile(`(?is)<(?:main|article|div[^>]*class="[^"]*(?:content|article|post|entry)[^"]*")[^>]*>(.*?)</(?:main|article|div)>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Result is the extracted page.
type Result struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// StatusError reports a non-success HTTP response from the target site.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: failed to fetch: %s", e.Status)
}

// Fetcher downloads and extracts pages behind a circuit breaker.
type Fetcher struct {
	client  *http.Client
	breaker *Breaker
}

// New creates a fetcher with the given request timeout.
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		breaker: NewBreaker(),
	}
}

// BreakerState exposes the circuit state for the health endpoint.
func (f *Fetcher) BreakerState() string {
	return f.breaker.State()
}

// NormalizeURL trims the input and defaults the scheme to https.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return url
}

// Fetch downloads a page and returns its title and plain-text content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	url := NormalizeURL(rawURL)
	if url == "" {
		return nil, ErrEmptyURL
	}

	body, err := f.breaker.Execute(ctx, func() (any, error) {
		return f.download(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	title, content := Extract(body.(string))
	return &Result{Title: title, Content: content, URL: url}, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetcher: invalid URL %q: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLang)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetcher: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("fetcher: failed to read response: %w", err)
	}
	return string(data), nil
}

// Extract pulls the page title and a plain-text rendition of the body
// out of raw HTML. Scripts, styles and noscript blocks are dropped, a
// main-content region is preferred over the whole page when one can be
// found, remaining tags are stripped, common entities are decoded and
// whitespace is collapsed. Content is truncated to maxContentChars.
func Extract(html string) (title, content string) {
	if m := titleRe.FindStringSubmatch(html); m != nil {
		title = strings.TrimSpace(m[1])
	}

	content = scriptRe.ReplaceAllString(html, "")
	content = styleRe.ReplaceAllString(content, "")
	content = noscriptRe.ReplaceAllString(content, "")

	if m := mainRe.FindStringSubmatch(content); m != nil {
		content = m[1]
	}

	content = tagRe.ReplaceAllString(content, " ")
	for _, entity := range [][2]string{
		{"&nbsp;", " "},
		{"&amp;", "&"},
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&quot;", `"`},
		{"&#39;", "'"},
	} {
		content = strings.ReplaceAll(content, entity[0], entity[1])
	}
	content = strings.TrimSpace(spaceRe.ReplaceAllString(content, " "))

	if runes := []rune(content); len(runes) > maxContentChars {
		content = string(runes[:maxContentChars]) + "..."
	}
	return title, content
}
