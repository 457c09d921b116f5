package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// GitHubTrendingSource polls the GitHub search API twice daily for recently
// starred repos matching an AI-tool keyword set, using a keyword match as
// its quality gate (spec.md §4.5: "keyword match for GitHub").
type GitHubTrendingSource struct {
	client   *http.Client
	apiToken string
	keywords []string
	minScore int
}

func NewGitHubTrendingSource(apiToken string, keywords []string, minScore int) *GitHubTrendingSource {
	if len(keywords) == 0 {
		keywords = []string{"agent", "llm", "ai-tool"}
	}
	return &GitHubTrendingSource{client: &http.Client{Timeout: httpTimeout}, apiToken: apiToken, keywords: keywords, minScore: minScore}
}

func (s *GitHubTrendingSource) Name() string { return "github" }

func (s *GitHubTrendingSource) Config() Config {
	return Config{Schedule: "0 6,18 * * *", MinScore: s.minScore} // twice daily
}

type githubSearchResponse struct {
	Items []struct {
		ID              int64  `json:"id"`
		FullName        string `json:"full_name"`
		HTMLURL         string `json:"html_url"`
		Description     string `json:"description"`
		StargazersCount int    `json:"stargazers_count"`
	} `json:"items"`
}

func (s *GitHubTrendingSource) Discover(ctx context.Context) ([]Discovered, error) {
	query := strings.Join(s.keywords, " OR ")
	url := fmt.Sprintf("https://api.github.com/search/repositories?q=%s&sort=stars&order=desc", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "github: build request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "github: request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindExecution, fmt.Sprintf("github: unexpected status %d", resp.StatusCode))
	}

	var body githubSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "github: decode response", err)
	}

	var out []Discovered
	for _, item := range body.Items {
		if item.StargazersCount < s.minScore {
			continue
		}
		out = append(out, Discovered{
			ExternalID:  strconv.FormatInt(item.ID, 10),
			Name:        item.FullName,
			URL:         item.HTMLURL,
			Description: item.Description,
			Score:       item.StargazersCount,
		})
	}
	return out, nil
}
