package tools

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	models "github.com/Desarso/toolgate/models"
)

func mockHTTPGet(body string, status int) func(context.Context, string) (*http.Response, error) {
	return func(ctx context.Context, url string) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		}, nil
	}
}

func TestCrawlMarkdown(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()

	httpGet = mockHTTPGet(`<html><body><h1>Hello World</h1><p>This is a <b>test</b> paragraph.</p><a href="https://example.com">link</a></body></html>`, 200)

	result, err := Crawl(context.Background(), "https://example.com", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result, "# Hello World") {
		t.Errorf("expected markdown header, got %q", result)
	}
	if !strings.Contains(result, "**test**") {
		t.Errorf("expected bold, got %q", result)
	}
	if !strings.Contains(result, "[link](https://example.com)") {
		t.Errorf("expected link, got %q", result)
	}
}

func TestCrawlStripsScripts(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()

	httpGet = mockHTTPGet(`<html><body>
		<script>var x = 1;</script>
		<style>body { color: red; }</style>
		<p>Clean text here.</p>
	</body></html>`, 200)

	result, err := Crawl(context.Background(), "https://example.com", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result, "Clean text here.") {
		t.Errorf("expected clean text, got %q", result)
	}
	if strings.Contains(result, "var x") {
		t.Error("script content should be stripped")
	}
}

func TestCrawlMaxChars(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()

	httpGet = mockHTTPGet("<p>"+strings.Repeat("a", 1000)+"</p>", 200)

	result, err := Crawl(context.Background(), "https://example.com", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) > 120 { // 100 + truncation message
		t.Errorf("expected truncated result, got len %d", len(result))
	}
	if !strings.Contains(result, "truncated") {
		t.Error("expected truncation notice")
	}
}

func TestCrawlNotFound(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()

	httpGet = mockHTTPGet("not here", 404)

	_, err := Crawl(context.Background(), "https://example.com/missing", 0)
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Status != 404 {
		t.Errorf("expected status 404, got %d", fetchErr.Status)
	}
	var transient *models.TransientToolError
	if errors.As(err, &transient) {
		t.Error("4xx should not be transient")
	}
}

func TestCrawlServerErrorIsTransient(t *testing.T) {
	orig := httpGet
	defer func() { httpGet = orig }()

	httpGet = mockHTTPGet("boom", 503)

	_, err := Crawl(context.Background(), "https://example.com", 0)
	var transient *models.TransientToolError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientToolError, got %v", err)
	}
}

func TestCrawlRejectsBadURL(t *testing.T) {
	if _, err := Crawl(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := Crawl(context.Background(), "ftp://example.com", 0); err == nil {
		t.Error("expected error for non-http scheme")
	}
}
