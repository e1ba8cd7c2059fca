// Package backcheck runs the public-record background check: a web
// search completion about the applicant, JSON findings extraction, and
// tiered risk scoring.
package backcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/cost"
	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/pkg/anthropic"
	"github.com/veranda-hq/applyflow/pkg/websearch"
)

const searchPromptTemplate = `Search the public web for information about a rental applicant.

Name: %s
Email: %s

Report, as a JSON object with exactly these keys:
{
  "press_mentions": [],
  "legal_appearances": [],
  "social_media_profiles": [],
  "company_registrations": [],
  "others": "",
  "public_comments": "",
  "short_summary": ""
}

press_mentions: news articles naming this person. legal_appearances:
court records, filings, or judgments. social_media_profiles: profile
URLs. company_registrations: businesses registered to this person.
others and public_comments: free text. short_summary: two sentences.
Respond with the JSON object only.`

const extractionSystemPrompt = `You convert free-form research notes about a person into a JSON object with exactly these keys: press_mentions (array of strings), legal_appearances (array of strings), social_media_profiles (array of strings), company_registrations (array of strings), others (string), public_comments (string), short_summary (string). Output the JSON object only, no prose.`

// Checker performs background checks against the search and extraction
// collaborators.
type Checker struct {
	search       websearch.Client
	llm          anthropic.Client
	extractModel string
	timeout      time.Duration
	maxTokens    int64
	pricing      *cost.Calculator
}

// New builds a Checker. extractModel is the model used for the JSON
// fallback extraction.
func New(search websearch.Client, llm anthropic.Client, extractModel string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if extractModel == "" {
		extractModel = "claude-haiku-4-5-20251001"
	}
	return &Checker{
		search:       search,
		llm:          llm,
		extractModel: extractModel,
		timeout:      timeout,
		maxTokens:    2048,
		pricing:      cost.NewCalculator(cost.DefaultRates()),
	}
}

// Run executes the check for one applicant and returns the scored result.
func (c *Checker) Run(ctx context.Context, subject model.DocumentSubject) (*model.BackgroundCheck, error) {
	if subject.Name == "" {
		return nil, eris.New("backcheck: applicant name required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.search.ChatCompletion(ctx, websearch.ChatCompletionRequest{
		Messages: []websearch.Message{
			{Role: "user", Content: fmt.Sprintf(searchPromptTemplate, subject.Name, subject.Email)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "backcheck: search")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("backcheck: empty search response")
	}

	raw := resp.Choices[0].Message.Content
	findings, extractSpend, err := c.extractFindings(ctx, raw)
	if err != nil {
		return nil, err
	}

	risk, reason := Score(*findings)
	zap.L().Info("background check scored",
		zap.String("risk", string(risk)),
		zap.Int("press_mentions", len(findings.PressMentions)),
		zap.Int("legal_appearances", len(findings.LegalAppearances)),
		zap.Float64("cost_usd", c.pricing.SearchQuery()+extractSpend),
	)

	return &model.BackgroundCheck{
		Findings: *findings,
		Risk:     risk,
		Reason:   reason,
	}, nil
}

// extractFindings parses the completion directly and falls back to a
// second-tier model extraction when the completion isn't valid JSON.
// The second return value is the extraction spend in USD.
func (c *Checker) extractFindings(ctx context.Context, raw string) (*model.SearchFindings, float64, error) {
	var findings model.SearchFindings
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &findings); err == nil {
		return &findings, 0, nil
	}

	zap.L().Debug("search completion not valid JSON, extracting")
	resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.extractModel,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractionSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: raw}},
	})
	if err != nil {
		return nil, 0, eris.Wrap(err, "backcheck: extraction")
	}
	spend := c.pricing.Claude(c.extractModel,
		int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens),
		int(resp.Usage.CacheCreationInputTokens), int(resp.Usage.CacheReadInputTokens),
	)

	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &findings); err != nil {
		return nil, spend, eris.Wrap(err, "backcheck: parse extracted findings")
	}
	return &findings, spend, nil
}

// cleanJSON strips markdown fences and isolates the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
