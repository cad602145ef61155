// Package openai implements the reasoning provider over the OpenAI
// Responses API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/admission"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/todo"
)

const (
	defaultModel           = "gpt-4o-mini"
	defaultMaxOutputTokens = 4096
)

// Config configures the OpenAI reasoner.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
}

// Reasoner implements provider.Reasoner over the OpenAI Responses API.
type Reasoner struct {
	client     openai.Client
	model      string
	maxTokens  int64
	capability provider.Capability
	logger     *zap.Logger
}

// New builds the reasoner. The capability may be nil; then plans are
// produced from server names alone.
func New(cfg Config, capability provider.Capability, logger *zap.Logger) (*Reasoner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: api key required")
	}
	opts := []ooption.RequestOption{ooption.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if cfg.BaseURL != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{
		client:     openai.NewClient(opts...),
		model:      model,
		maxTokens:  int64(maxTokens),
		capability: capability,
		logger:     logger,
	}, nil
}

// complete performs one round-trip and returns the output text.
func (r *Reasoner) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := r.client.Responses.New(ctx, oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(r.model),
		Instructions:    openai.String(system),
		MaxOutputTokens: openai.Int(r.maxTokens),
		Input:           oresponses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	})
	if err != nil {
		return "", wrapErr(err)
	}
	text := resp.OutputText()
	if text == "" {
		return "", fmt.Errorf("openai: empty response")
	}
	return text, nil
}

// wrapErr classifies the API error. Server-side failures and rate
// limits are marked transient so the admission layer retries them;
// everything else surfaces as-is.
func wrapErr(err error) error {
	wrapped := fmt.Errorf("openai: %w", err)
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode >= http.StatusInternalServerError ||
			apierr.StatusCode == http.StatusTooManyRequests {
			return admission.Transient(wrapped)
		}
	}
	return wrapped
}

func (r *Reasoner) Decompose(ctx context.Context, request string) (*todo.List, error) {
	raw, err := r.complete(ctx, provider.DecomposeSystem, provider.BuildDecomposePrompt(request))
	if err != nil {
		return nil, err
	}
	list, err := provider.ParseDecomposition(raw, request)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("decomposed request", zap.Int("items", len(list.Items())))
	return list, nil
}

func (r *Reasoner) SelectServers(ctx context.Context, item *todo.Item, listCtx *provider.ListContext) (*provider.ServerSelection, error) {
	var servers []string
	if r.capability != nil {
		servers = r.capability.Servers()
	}
	raw, err := r.complete(ctx, provider.SelectSystem, provider.BuildSelectPrompt(item, listCtx, servers))
	if err != nil {
		return nil, err
	}
	return provider.ParseSelection(raw)
}

func (r *Reasoner) Plan(ctx context.Context, item *todo.Item, listCtx *provider.ListContext, servers []string) (*provider.PlanResult, error) {
	var catalogs string
	if r.capability != nil {
		catalogs = provider.CatalogSummary(r.capability, servers)
	}
	raw, err := r.complete(ctx, provider.PlanSystem, provider.BuildPlanPrompt(item, listCtx, servers, catalogs))
	if err != nil {
		return nil, err
	}
	return provider.ParsePlan(raw)
}

func (r *Reasoner) Verify(ctx context.Context, item *todo.Item, results []todo.CallResult, method string) (*todo.VerificationResult, error) {
	raw, err := r.complete(ctx, provider.VerifySystem, provider.BuildVerifyPrompt(item, results, method))
	if err != nil {
		return nil, err
	}
	v, err := provider.ParseVerification(raw)
	if err != nil {
		return nil, err
	}
	v.Method = method
	return v, nil
}

func (r *Reasoner) Replan(ctx context.Context, item *todo.Item, execEvidence []todo.CallResult, verifyEvidence *todo.VerificationResult) (*provider.ReplanDecision, error) {
	raw, err := r.complete(ctx, provider.ReplanSystem, provider.BuildReplanPrompt(item, execEvidence, verifyEvidence))
	if err != nil {
		return nil, err
	}
	return provider.ParseReplan(raw)
}

var _ provider.Reasoner = (*Reasoner)(nil)
