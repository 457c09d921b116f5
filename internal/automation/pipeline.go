package automation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/automation/source"
	"github.com/toolforge/agentgraph/internal/engine/model"
)

// Pipeline wires the three task kinds of spec.md §4.5 to concrete
// handlers: discover (one Source's Discover + quality gate + dedup),
// enrich (LLM bilingual name/description + pricing classification), index
// (resync the indexed-ready subset to the configured search endpoint).
type Pipeline struct {
	Broker     *Broker
	Candidates *CandidateRepo
	Sources    map[string]source.Source
	Chat       model.ChatModel
	ChatModel  string
	IndexURL   string
	IndexKey   string
	HTTPClient *http.Client
}

// Register binds the pipeline's handlers into a Registry under their
// TaskKind names.
func (p *Pipeline) Register(r *Registry) error {
	if err := r.Register(TaskDiscover, p.handleDiscover); err != nil {
		return err
	}
	if err := r.Register(TaskEnrich, p.handleEnrich); err != nil {
		return err
	}
	return r.Register(TaskIndex, p.handleIndex)
}

// handleDiscover runs one source's discovery pipeline: fetch, filter,
// dedup-upsert, and one enrichment task per newly-seen candidate, followed
// by a single indexing task for the batch (spec.md §4.5 steps 1-4, 6).
func (p *Pipeline) handleDiscover(ctx context.Context, t Task) error {
	sourceName, _ := t.Payload["source"].(string)
	src, ok := p.Sources[sourceName]
	if !ok {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("unknown source %q", sourceName))
	}

	found, err := src.Discover(ctx)
	if err != nil {
		return err
	}

	var fresh []Candidate
	for _, d := range found {
		cand := Candidate{
			Source:      src.Name(),
			ExternalID:  d.ExternalID,
			Name:        d.Name,
			URL:         d.URL,
			Description: d.Description,
			Score:       d.Score,
		}
		stored, isNew, err := p.Candidates.Upsert(ctx, cand)
		if err != nil {
			return err
		}
		if isNew {
			fresh = append(fresh, stored)
		}
	}

	for _, c := range fresh {
		if _, err := p.Broker.Enqueue(ctx, QueueEnrichment, Task{
			Kind:    TaskEnrich,
			Payload: map[string]interface{}{"candidate_id": c.ID},
		}); err != nil {
			return err
		}
	}

	_, err = p.Broker.Enqueue(ctx, QueueIndexing, Task{Kind: TaskIndex})
	return err
}

const enrichPrompt = `You are cataloguing a developer tool for a bilingual (English/Chinese)
directory. Given the tool's name, URL, and description, respond with exactly
three lines in this order and no other text:
1. the Chinese translation of the name
2. the Chinese translation of the description
3. a pricing classification, one of: free, freemium, paid, unknown`

// handleEnrich calls the LLM to produce a bilingual name/description and a
// pricing classification for one candidate, then writes the catalogue
// record (spec.md §4.5 step 5).
func (p *Pipeline) handleEnrich(ctx context.Context, t Task) error {
	candidateID, _ := t.Payload["candidate_id"].(string)
	if candidateID == "" {
		return apperr.New(apperr.KindValidation, "enrich task missing candidate_id")
	}
	cand, err := p.Candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}

	out, err := p.Chat.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: enrichPrompt},
		{Role: model.RoleUser, Content: fmt.Sprintf("Name: %s\nURL: %s\nDescription: %s", cand.Name, cand.URL, cand.Description)},
	}, model.ChatOptions{Model: p.ChatModel, Temperature: 0})
	if err != nil {
		return apperr.Wrap(apperr.KindExecution, "enrich: llm call", err)
	}

	lines := strings.SplitN(strings.TrimSpace(out.Text), "\n", 3)
	for len(lines) < 3 {
		lines = append(lines, "")
	}
	nameZH := strings.TrimSpace(lines[0])
	descZH := strings.TrimSpace(lines[1])
	pricing := strings.TrimSpace(strings.ToLower(lines[2]))

	return p.Candidates.Enrich(ctx, cand.ID, nameZH, descZH, pricing)
}

// handleIndex resyncs every enriched candidate to the configured search
// index endpoint, marking each StatusIndexed on success (spec.md §4.5 step
// 6, "Indexing is a full resync of the ready subset").
func (p *Pipeline) handleIndex(ctx context.Context, t Task) error {
	ready, err := p.Candidates.ListByStatus(ctx, StatusEnriched)
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return nil
	}
	if p.IndexURL == "" {
		// No search index configured; leave candidates enriched rather than
		// silently dropping them.
		return nil
	}

	var lastErr error
	for _, c := range ready {
		if err := p.syncOne(ctx, c); err != nil {
			// One failing item never rolls back successful siblings
			// (spec.md §4.5 "Retries"); keep going and report the last
			// error once every item has been tried.
			lastErr = err
			continue
		}
		if err := p.Candidates.MarkStatus(ctx, c.ID, StatusIndexed); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *Pipeline) syncOne(ctx context.Context, c Candidate) error {
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	body := fmt.Sprintf(`{"id":%q,"name":%q,"name_zh":%q,"description":%q,"description_zh":%q,"pricing":%q,"url":%q}`,
		c.ID, c.Name, c.NameZH, c.Description, c.DescriptionZH, c.Pricing, c.URL)

	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, p.IndexURL+"/"+c.ID, strings.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindExecution, "index: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.IndexKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.IndexKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindExecution, "index: request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperr.New(apperr.KindExecution, fmt.Sprintf("index: unexpected status %d", resp.StatusCode))
	}
	return nil
}
