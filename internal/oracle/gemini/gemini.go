// Package gemini implements the categorization oracle on the Generative
// Language API with JSON-schema constrained responses.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	"thinkpay/internal/core"
	"thinkpay/internal/oracle"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// Config configures the client.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is an oracle.Oracle backed by Gemini.
type Client struct {
	svc     *generativelanguage.Service
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ oracle.Oracle = (*Client)(nil)

// New creates a client. Extra options are appended after the API key, which
// lets tests point the client at a local endpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" && len(opts) == 0 {
		return nil, errors.New("missing Gemini API key")
	}
	all := make([]option.ClientOption, 0, len(opts)+1)
	if cfg.APIKey != "" {
		all = append(all, option.WithAPIKey(cfg.APIKey))
	}
	all = append(all, opts...)

	svc, err := generativelanguage.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create generative language service: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		svc:     svc,
		model:   "models/" + strings.TrimPrefix(model, "models/"),
		timeout: timeout,
		logger:  slog.Default().With("component", "oracle"),
	}, nil
}

var categorizationSchema = &generativelanguage.Schema{
	Type: "OBJECT",
	Properties: map[string]generativelanguage.Schema{
		"category":       {Type: "STRING"},
		"confidence":     {Type: "NUMBER"},
		"suggestedVault": {Type: "STRING", Enum: vaultTypeNames()},
		"explanation":    {Type: "STRING", Description: "Human-readable reason why this vault was chosen"},
	},
	Required: []string{"category", "confidence", "suggestedVault", "explanation"},
}

var insightsSchema = &generativelanguage.Schema{
	Type: "OBJECT",
	Properties: map[string]generativelanguage.Schema{
		"tips":             {Type: "ARRAY", Items: &generativelanguage.Schema{Type: "STRING"}},
		"summary":          {Type: "STRING"},
		"savingsPotential": {Type: "STRING"},
	},
	Required: []string{"tips", "summary", "savingsPotential"},
}

// Vault types the model may suggest. Custom vaults are never a target.
func vaultTypeNames() []string {
	return []string{
		string(core.Lifestyle), string(core.Food), string(core.Emergency),
		string(core.Business), string(core.Bills),
	}
}

func (c *Client) Categorize(ctx context.Context, merchant string, amount core.Money) oracle.Categorization {
	prompt := fmt.Sprintf("Categorize this spending: %q for amount %s. Choose from: %s.",
		merchant, amount.String(), strings.Join(vaultTypeNames(), ", "))

	text, err := c.generate(ctx, prompt, categorizationSchema)
	if err != nil {
		c.logger.WarnContext(ctx, "Categorization failed, using fallback", "error", err)
		return oracle.FallbackCategorization()
	}
	cat, err := ParseCategorization(text)
	if err != nil {
		c.logger.WarnContext(ctx, "Categorization response rejected, using fallback", "error", err)
		return oracle.FallbackCategorization()
	}
	return cat
}

func (c *Client) MonthlyInsights(ctx context.Context, recent []core.Transaction, vaults []core.Vault) oracle.Insights {
	recent = oracle.RecentForInsights(recent)
	history := make([]string, 0, len(recent))
	for _, tx := range recent {
		history = append(history, fmt.Sprintf("%s: %s", tx.Merchant, tx.Amount.Display()))
	}
	usage := make([]string, 0, len(vaults))
	for _, v := range vaults {
		usage = append(usage, fmt.Sprintf("%s spent %s of %s (locked=%t)",
			v.DisplayName(), v.Spent.Display(), v.Limit.Display(), v.IsLocked))
	}
	prompt := fmt.Sprintf("Analyze these transactions: [%s]. Based on vault usage: [%s]. "+
		"Provide 3 smart financial tips and a summary of the spending habits.",
		strings.Join(history, ", "), strings.Join(usage, "; "))

	text, err := c.generate(ctx, prompt, insightsSchema)
	if err != nil {
		c.logger.WarnContext(ctx, "Insights request failed, using fallback", "error", err)
		return oracle.FallbackInsights()
	}
	ins, err := ParseInsights(text)
	if err != nil {
		c.logger.WarnContext(ctx, "Insights response rejected, using fallback", "error", err)
		return oracle.FallbackInsights()
	}
	return ins
}

func (c *Client) generate(ctx context.Context, prompt string, schema *generativelanguage.Schema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}
	resp, err := c.svc.Models.GenerateContent(c.model, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if p != nil {
				b.WriteString(p.Text)
			}
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
	return "", errors.New("empty response")
}

type categorizationPayload struct {
	Category       *string  `json:"category"`
	Confidence     *float64 `json:"confidence"`
	SuggestedVault *string  `json:"suggestedVault"`
	Explanation    *string  `json:"explanation"`
}

// ParseCategorization decodes a model answer. Every field is required, the
// confidence must lie in [0,1] and the vault must be a known type.
func ParseCategorization(text string) (oracle.Categorization, error) {
	var p categorizationPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return oracle.Categorization{}, fmt.Errorf("decode categorization: %w", err)
	}
	if p.Category == nil || strings.TrimSpace(*p.Category) == "" {
		return oracle.Categorization{}, errors.New("missing category")
	}
	if p.Confidence == nil || *p.Confidence < 0 || *p.Confidence > 1 {
		return oracle.Categorization{}, errors.New("missing or out of range confidence")
	}
	if p.SuggestedVault == nil {
		return oracle.Categorization{}, errors.New("missing suggestedVault")
	}
	vt, ok := core.ParseVaultType(*p.SuggestedVault)
	if !ok {
		return oracle.Categorization{}, fmt.Errorf("unknown vault type %q", *p.SuggestedVault)
	}
	if p.Explanation == nil {
		return oracle.Categorization{}, errors.New("missing explanation")
	}
	return oracle.Categorization{
		Category:       strings.TrimSpace(*p.Category),
		Confidence:     *p.Confidence,
		SuggestedVault: vt,
		Explanation:    *p.Explanation,
	}, nil
}

type insightsPayload struct {
	Tips             []string `json:"tips"`
	Summary          *string  `json:"summary"`
	SavingsPotential *string  `json:"savingsPotential"`
}

// ParseInsights decodes a model answer; tips, summary and savings are required.
func ParseInsights(text string) (oracle.Insights, error) {
	var p insightsPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return oracle.Insights{}, fmt.Errorf("decode insights: %w", err)
	}
	tips := make([]string, 0, len(p.Tips))
	for _, t := range p.Tips {
		if t = strings.TrimSpace(t); t != "" {
			tips = append(tips, t)
		}
	}
	if len(tips) == 0 {
		return oracle.Insights{}, errors.New("missing tips")
	}
	if p.Summary == nil || strings.TrimSpace(*p.Summary) == "" {
		return oracle.Insights{}, errors.New("missing summary")
	}
	if p.SavingsPotential == nil || strings.TrimSpace(*p.SavingsPotential) == "" {
		return oracle.Insights{}, errors.New("missing savingsPotential")
	}
	return oracle.Insights{
		Tips:             tips,
		Summary:          *p.Summary,
		SavingsPotential: *p.SavingsPotential,
	}, nil
}
