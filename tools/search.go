package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	models "github.com/Desarso/toolgate/models"
)

// SearchResult is the normalized shape every backend maps onto. Models see
// the same JSON regardless of which engine served the query.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchConfig selects and configures the search backend.
type SearchConfig struct {
	Engine         string // "duckduckgo", "google", "bing", "serper", "searxng"
	MaxResults     int
	GoogleCX       string
	GoogleKey      string
	BingKey        string
	SerperKey      string
	SearXNGBaseURL string
}

// SearchService fans queries out to a configured web search engine.
type SearchService struct {
	Config SearchConfig
}

func NewSearchService(config SearchConfig) *SearchService {
	if config.Engine == "" {
		config.Engine = "duckduckgo"
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	return &SearchService{Config: config}
}

// httpDo is a package-level var so tests can mock it.
var httpDo = defaultHTTPDo

func defaultHTTPDo(req *http.Request) (*http.Response, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	return client.Do(req)
}

// Search runs a web search. isNews switches backends into their news
// vertical where one exists.
func (s *SearchService) Search(ctx context.Context, query string, isNews bool) ([]SearchResult, error) {
	var (
		results []SearchResult
		err     error
	)
	switch s.Config.Engine {
	case "google":
		results, err = s.searchGoogle(ctx, query, isNews)
	case "bing":
		results, err = s.searchBing(ctx, query, isNews)
	case "serper":
		results, err = s.searchSerper(ctx, query, isNews)
	case "searxng":
		results, err = s.searchSearXNG(ctx, query, isNews)
	default:
		results, err = s.searchDuckDuckGo(ctx, query, isNews)
	}
	if err != nil {
		return nil, err
	}
	if len(results) > s.Config.MaxResults {
		results = results[:s.Config.MaxResults]
	}
	return results, nil
}

func (s *SearchService) searchDuckDuckGo(ctx context.Context, query string, isNews bool) ([]SearchResult, error) {
	apiURL := "https://ddg.search2ai.online/search"
	if isNews {
		apiURL = "https://ddg.search2ai.online/searchNews"
	}

	body, err := json.Marshal(map[string]interface{}{
		"q":           query,
		"max_results": s.Config.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var apiResponse struct {
		Results []struct {
			Title string `json:"title"`
			Href  string `json:"href"`
			URL   string `json:"url"`
			Body  string `json:"body"`
		} `json:"results"`
	}
	if err := s.doJSON(req, &apiResponse); err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, item := range apiResponse.Results {
		link := item.Href
		if link == "" {
			link = item.URL
		}
		results = append(results, SearchResult{Title: item.Title, Link: link, Snippet: item.Body})
	}
	return results, nil
}

func (s *SearchService) searchGoogle(ctx context.Context, query string, isNews bool) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("cx", s.Config.GoogleCX)
	params.Set("key", s.Config.GoogleKey)
	params.Set("q", query)
	if isNews {
		params.Set("tbm", "nws")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", "https://www.googleapis.com/customsearch/v1?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var apiResponse struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := s.doJSON(req, &apiResponse); err != nil {
		return nil, err
	}
	if apiResponse.Error.Code != 0 {
		return nil, fmt.Errorf("Google API error: %s (code: %d)", apiResponse.Error.Message, apiResponse.Error.Code)
	}

	var results []SearchResult
	for _, item := range apiResponse.Items {
		results = append(results, SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

func (s *SearchService) searchBing(ctx context.Context, query string, isNews bool) ([]SearchResult, error) {
	apiURL := "https://api.bing.microsoft.com/v7.0/search?q=" + url.QueryEscape(query)
	if isNews {
		apiURL = "https://api.bing.microsoft.com/v7.0/news/search?q=" + url.QueryEscape(query)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.Config.BingKey)

	var results []SearchResult
	if isNews {
		var apiResponse struct {
			Value []struct {
				Name        string `json:"name"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"value"`
		}
		if err := s.doJSON(req, &apiResponse); err != nil {
			return nil, err
		}
		for _, item := range apiResponse.Value {
			results = append(results, SearchResult{Title: item.Name, Link: item.URL, Snippet: item.Description})
		}
		return results, nil
	}

	var apiResponse struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := s.doJSON(req, &apiResponse); err != nil {
		return nil, err
	}
	for _, item := range apiResponse.WebPages.Value {
		results = append(results, SearchResult{Title: item.Name, Link: item.URL, Snippet: item.Snippet})
	}
	return results, nil
}

func (s *SearchService) searchSerper(ctx context.Context, query string, isNews bool) ([]SearchResult, error) {
	apiURL := "https://google.serper.dev/search"
	if isNews {
		apiURL = "https://google.serper.dev/news"
	}

	body, err := json.Marshal(map[string]interface{}{
		"q":  query,
		"gl": "us",
		"hl": "en",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.Config.SerperKey)
	req.Header.Set("Content-Type", "application/json")

	var apiResponse struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
		News []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"news"`
	}
	if err := s.doJSON(req, &apiResponse); err != nil {
		return nil, err
	}

	var results []SearchResult
	items := apiResponse.Organic
	if isNews {
		items = apiResponse.News
	}
	for _, item := range items {
		results = append(results, SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

func (s *SearchService) searchSearXNG(ctx context.Context, query string, isNews bool) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if isNews {
		params.Set("category", "news")
	} else {
		params.Set("category", "general")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.Config.SearXNGBaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var apiResponse struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := s.doJSON(req, &apiResponse); err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, item := range apiResponse.Results {
		results = append(results, SearchResult{Title: item.Title, Link: item.URL, Snippet: item.Content})
	}
	return results, nil
}

// doJSON executes the request and decodes a JSON body. Connection failures
// and 5xx/429 statuses are marked transient so the executor retries once.
func (s *SearchService) doJSON(req *http.Request, out interface{}) error {
	resp, err := httpDo(req)
	if err != nil {
		return &models.TransientToolError{Tool: "search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API request failed with status: %d", resp.StatusCode)
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return &models.TransientToolError{Tool: "search", Err: err}
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SearchTool returns the declaration for the web search tool.
func SearchTool(svc *SearchService) (models.FunctionDeclaration, Func) {
	decl := models.FunctionDeclaration{
		Name:        "search",
		Description: "Search for information on the internet",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query to execute",
				},
			},
			Required: []string{"query"},
		},
	}
	fn := func(ctx context.Context, args map[string]interface{}) (string, error) {
		query, _ := args["query"].(string)
		results, err := svc.Search(ctx, query, false)
		if err != nil {
			return "", err
		}
		return marshalResults(results)
	}
	return decl, fn
}

// NewsTool returns the declaration for the news search tool.
func NewsTool(svc *SearchService) (models.FunctionDeclaration, Func) {
	decl := models.FunctionDeclaration{
		Name:        "news",
		Description: "Search for news articles",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The news search query to execute",
				},
			},
			Required: []string{"query"},
		},
	}
	fn := func(ctx context.Context, args map[string]interface{}) (string, error) {
		query, _ := args["query"].(string)
		results, err := svc.Search(ctx, query, true)
		if err != nil {
			return "", err
		}
		return marshalResults(results)
	}
	return decl, fn
}

func marshalResults(results []SearchResult) (string, error) {
	if results == nil {
		results = []SearchResult{}
	}
	out, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	return string(out), nil
}
