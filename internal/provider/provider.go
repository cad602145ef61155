package provider

import (
	"context"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// ListContext is the surrounding-list summary a reasoner sees when
// working on one item.
type ListContext struct {
	// Request is the original high-level request.
	Request string

	// Items summarizes the whole list so the reasoner can respect
	// ordering and avoid duplicating sibling work.
	Items []*todo.Item
}

// PlanResult is a reasoner's tool-call plan for one item.
type PlanResult struct {
	Calls   []todo.ToolCall `json:"tool_calls"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}

// ServerSelection names the capability servers relevant to an item.
type ServerSelection struct {
	Servers []string `json:"servers"`

	// Prompts optionally carries per-server guidance for planning.
	Prompts map[string]string `json:"prompts,omitempty"`
}

// ReplanStrategy is the reasoner's decision after a failed attempt.
type ReplanStrategy string

const (
	// StrategyRetry re-runs the same item.
	StrategyRetry ReplanStrategy = "retry"
	// StrategyDecompose replaces the item with child items.
	StrategyDecompose ReplanStrategy = "decompose"
	// StrategySkip abandons the item as non-essential.
	StrategySkip ReplanStrategy = "skip"
	// StrategyFail marks the item terminally failed.
	StrategyFail ReplanStrategy = "fail"
)

// ReplanDecision is the outcome of root-cause analysis on a failure.
type ReplanDecision struct {
	Replanned bool           `json:"replanned"`
	Strategy  ReplanStrategy `json:"strategy"`

	// NewItems are the decomposed children for StrategyDecompose; their
	// IDs are assigned by the orchestrator, not the reasoner.
	NewItems []*todo.Item `json:"new_items,omitempty"`

	Reasoning string `json:"reasoning,omitempty"`
}

// Reasoner produces plans, verifications, and replans from natural
// language context. Implementations perform provider round-trips; the
// engine only ever calls them through the admission layer.
type Reasoner interface {
	// Decompose builds the initial todo list for a request.
	Decompose(ctx context.Context, request string) (*todo.List, error)

	// SelectServers names the capability servers relevant to the item.
	SelectServers(ctx context.Context, item *todo.Item, listCtx *ListContext) (*ServerSelection, error)

	// Plan produces a tool-call plan constrained to the given servers.
	Plan(ctx context.Context, item *todo.Item, listCtx *ListContext, servers []string) (*PlanResult, error)

	// Verify judges execution evidence with the named method.
	Verify(ctx context.Context, item *todo.Item, results []todo.CallResult, method string) (*todo.VerificationResult, error)

	// Replan analyzes a failed attempt and decides what to do next.
	Replan(ctx context.Context, item *todo.Item, execEvidence []todo.CallResult, verifyEvidence *todo.VerificationResult) (*ReplanDecision, error)
}

// ToolInfo describes one tool in a capability server's catalog.
type ToolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
}

// InvokeResult is the per-call outcome from a capability provider.
type InvokeResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Capability is a set of named tool servers, each with a fixed,
// queryable catalog. It satisfies the validation pipeline's Catalog.
type Capability interface {
	// Servers lists the known server names.
	Servers() []string

	// Tools returns the server's catalog.
	Tools(server string) []ToolInfo

	// ToolExists reports whether the tool is in the server's catalog.
	ToolExists(server, tool string) bool

	// FindSimilarTool returns the closest catalog tool and similarity.
	FindSimilarTool(server, tool string) (string, float64)

	// RequiredParameters lists a tool's required parameter names.
	RequiredParameters(server, tool string) []string

	// Invoke executes one tool call.
	Invoke(ctx context.Context, call todo.ToolCall) (*InvokeResult, error)
}
