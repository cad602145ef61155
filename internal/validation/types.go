package validation

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Severity distinguishes rejections from advisories.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one problem reported by a validator.
type Finding struct {
	Stage     string   `json:"stage"`
	Severity  Severity `json:"severity"`
	CallIndex int      `json:"call_index"`
	Message   string   `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] call %d: %s", f.Stage, f.CallIndex, f.Message)
}

// Correction records one automatic repair applied to a call.
type Correction struct {
	Stage     string `json:"stage"`
	CallIndex int    `json:"call_index"`
	Field     string `json:"field"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Result is the outcome of validating a set of tool calls.
type Result struct {
	Valid       bool         `json:"valid"`
	Errors      []Finding    `json:"errors,omitempty"`
	Warnings    []Finding    `json:"warnings,omitempty"`
	Corrections []Correction `json:"corrections,omitempty"`

	// CorrectedCalls is the full repaired call list, present only when
	// at least one correction was applied.
	CorrectedCalls []todo.ToolCall `json:"corrected_calls,omitempty"`
}

// Calls returns the calls an executor should run: the corrected list
// when repairs were applied, otherwise the originals.
func (r *Result) Calls(original []todo.ToolCall) []todo.ToolCall {
	if len(r.CorrectedCalls) > 0 {
		return r.CorrectedCalls
	}
	return original
}

// Catalog exposes the capability-provider tool catalogs the pipeline
// checks against.
type Catalog interface {
	// Servers lists the known capability-provider server names.
	Servers() []string

	// ToolExists reports whether the named tool is in the server's catalog.
	ToolExists(server, tool string) bool

	// FindSimilarTool returns the closest catalog tool and its
	// similarity in [0,1]. Empty name when the catalog is empty.
	FindSimilarTool(server, tool string) (string, float64)

	// RequiredParameters lists the required parameter names of a tool.
	RequiredParameters(server, tool string) []string
}

// Context carries the collaborators a validator may consult.
type Context struct {
	// ItemID is the todo item whose plan is being validated.
	ItemID string

	Catalog Catalog
	History *History
}

// Validator is one pluggable pipeline stage.
type Validator interface {
	// Name identifies the stage in the registry and in metrics.
	Name() string

	// Validate inspects calls and returns findings and corrections.
	// Implementations must not mutate the input slice; repairs go
	// through the returned corrected copy.
	Validate(ctx context.Context, calls []todo.ToolCall, vctx *Context) *Result
}
