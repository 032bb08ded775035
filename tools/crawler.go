package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	models "github.com/Desarso/toolgate/models"
)

const (
	crawlBodyLimit = 5 * 1024 * 1024 // 5MB
	crawlUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// httpGet is a package-level var so tests can mock it.
var httpGet = defaultHTTPGet

func defaultHTTPGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	// Some sites refuse non-browser user agents.
	req.Header.Set("User-Agent", crawlUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")
	client := &http.Client{Timeout: 20 * time.Second}
	return client.Do(req)
}

// Crawl fetches a URL and returns its readable content as markdown.
// maxChars limits output length (0 = no limit).
func Crawl(ctx context.Context, url string, maxChars int) (string, error) {
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("url must be http or https: %s", url)
	}

	resp, err := httpGet(ctx, url)
	if err != nil {
		return "", &models.TransientToolError{Tool: "crawler", Err: &models.FetchError{URL: url, Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fetchErr := &models.FetchError{URL: url, Status: resp.StatusCode}
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return "", &models.TransientToolError{Tool: "crawler", Err: fetchErr}
		}
		return "", fetchErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, crawlBodyLimit))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	result := htmlToMarkdown(string(body))
	if maxChars > 0 && len(result) > maxChars {
		result = result[:maxChars] + "\n...(truncated)"
	}
	return result, nil
}

// CrawlerTool returns the declaration for the URL content tool.
func CrawlerTool() (models.FunctionDeclaration, Func) {
	decl := models.FunctionDeclaration{
		Name:        "crawler",
		Description: "Get the content of a specified URL",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The URL of the webpage to crawl",
				},
			},
			Required: []string{"url"},
		},
	}
	fn := func(ctx context.Context, args map[string]interface{}) (string, error) {
		url, _ := args["url"].(string)
		return Crawl(ctx, url, 0)
	}
	return decl, fn
}

var (
	reScript   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reBlock    = regexp.MustCompile(`(?is)</?(?:p|div)[^>]*>`)
	reBr       = regexp.MustCompile(`(?i)<br\s*/?>`)
	reBold     = regexp.MustCompile(`(?is)<(?:b|strong)(?:\s[^>]*)?>(.+?)</(?:b|strong)>`)
	reItalic   = regexp.MustCompile(`(?is)<(?:i|em)(?:\s[^>]*)?>(.+?)</(?:i|em)>`)
	reCode     = regexp.MustCompile("(?is)<code[^>]*>(.*?)</code>")
	reLink     = regexp.MustCompile(`(?is)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	reListItem = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	reTag      = regexp.MustCompile(`<[^>]+>`)
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// htmlToMarkdown does a basic HTML-to-markdown conversion.
func htmlToMarkdown(html string) string {
	html = reScript.ReplaceAllString(html, "")
	html = reStyle.ReplaceAllString(html, "")

	for i := 6; i >= 1; i-- {
		re := regexp.MustCompile(fmt.Sprintf(`(?is)<h%d[^>]*>(.*?)</h%d>`, i, i))
		html = re.ReplaceAllString(html, "\n"+strings.Repeat("#", i)+" $1\n")
	}

	html = reBlock.ReplaceAllString(html, "\n")
	html = reBr.ReplaceAllString(html, "\n")
	html = reBold.ReplaceAllString(html, "**$1**")
	html = reItalic.ReplaceAllString(html, "*$1*")
	html = reCode.ReplaceAllString(html, "`$1`")
	html = reLink.ReplaceAllString(html, "[$2]($1)")
	html = reListItem.ReplaceAllString(html, "- $1\n")
	html = reTag.ReplaceAllString(html, "")

	html = decodeEntities(html)
	html = reSpaces.ReplaceAllString(html, " ")
	html = reNewlines.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}

func decodeEntities(s string) string {
	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
	)
	return r.Replace(s)
}
