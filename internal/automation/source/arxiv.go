package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// ArxivSource polls arXiv's Atom export API daily for new papers in a
// configured category, gating on category membership (spec.md §4.5:
// "category filter for ArXiv") rather than a numeric score.
type ArxivSource struct {
	client   *http.Client
	category string
}

func NewArxivSource(category string) *ArxivSource {
	if category == "" {
		category = "cs.AI"
	}
	return &ArxivSource{client: &http.Client{Timeout: httpTimeout}, category: category}
}

func (s *ArxivSource) Name() string { return "arxiv" }

func (s *ArxivSource) Config() Config {
	return Config{Schedule: "0 5 * * *", MinScore: 0} // daily, no score gate
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
}

func (s *ArxivSource) Discover(ctx context.Context) ([]Discovered, error) {
	url := fmt.Sprintf("http://export.arxiv.org/api/query?search_query=cat:%s&sortBy=submittedDate&sortOrder=descending&max_results=50", s.category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "arxiv: build request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "arxiv: request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindExecution, fmt.Sprintf("arxiv: unexpected status %d", resp.StatusCode))
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "arxiv: decode feed", err)
	}

	out := make([]Discovered, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		out = append(out, Discovered{
			ExternalID:  e.ID,
			Name:        strings.TrimSpace(e.Title),
			URL:         e.ID,
			Description: strings.TrimSpace(e.Summary),
		})
	}
	return out, nil
}
