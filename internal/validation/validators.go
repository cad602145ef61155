package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Standard stage names, in chain order.
const (
	StageFormat         = "format"
	StageHistory        = "history"
	StageSchema         = "schema"
	StageCapabilitySync = "capability_sync"
)

// namePattern constrains tool and server names. Name mismatches are
// always hard errors, never auto-corrected.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// FormatValidator checks tool/server naming and the server-prefix
// convention (a tool written "server_tool" must carry its own server's
// prefix).
type FormatValidator struct{}

func (FormatValidator) Name() string { return StageFormat }

func (FormatValidator) Validate(_ context.Context, calls []todo.ToolCall, vctx *Context) *Result {
	res := &Result{Valid: true}
	var servers []string
	if vctx != nil && vctx.Catalog != nil {
		servers = vctx.Catalog.Servers()
	}
	for i, call := range calls {
		if call.Server == "" || !namePattern.MatchString(call.Server) {
			res.Errors = append(res.Errors, Finding{
				Stage: StageFormat, Severity: SeverityError, CallIndex: i,
				Message: fmt.Sprintf("invalid server name %q", call.Server),
			})
		}
		if call.Tool == "" || !namePattern.MatchString(call.Tool) {
			res.Errors = append(res.Errors, Finding{
				Stage: StageFormat, Severity: SeverityError, CallIndex: i,
				Message: fmt.Sprintf("invalid tool name %q", call.Tool),
			})
			continue
		}
		// Prefix convention: a tool named "<server>_<rest>" must target
		// that server. Only known server names count as a prefix, so
		// names like "read_file" stay legal.
		for _, server := range servers {
			if server == call.Server {
				continue
			}
			if strings.HasPrefix(call.Tool, server+"_") {
				res.Errors = append(res.Errors, Finding{
					Stage: StageFormat, Severity: SeverityError, CallIndex: i,
					Message: fmt.Sprintf("tool %q carries prefix %q but targets server %q", call.Tool, server, call.Server),
				})
				break
			}
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// HistoryValidator flags repetition after failure and chronically
// failing tools.
type HistoryValidator struct {
	// MaxRecentFailures triggers a rejection when the same call failed
	// this many times recently.
	MaxRecentFailures int

	// MinSuccessRate warns when the tool's rolling success rate falls
	// below it. Default 0.3.
	MinSuccessRate float64
}

// NewHistoryValidator returns a history validator with defaults.
func NewHistoryValidator() *HistoryValidator {
	return &HistoryValidator{MaxRecentFailures: 3, MinSuccessRate: 0.3}
}

func (*HistoryValidator) Name() string { return StageHistory }

func (v *HistoryValidator) Validate(_ context.Context, calls []todo.ToolCall, vctx *Context) *Result {
	res := &Result{Valid: true}
	if vctx == nil || vctx.History == nil {
		return res
	}
	for i, call := range calls {
		if failures := vctx.History.RecentFailures(call.Server, call.Tool); failures >= v.MaxRecentFailures {
			res.Errors = append(res.Errors, Finding{
				Stage: StageHistory, Severity: SeverityError, CallIndex: i,
				Message: fmt.Sprintf("%s failed %d times recently; refusing to repeat", call, failures),
			})
			continue
		}
		if rate, ok := vctx.History.SuccessRate(call.Server, call.Tool); ok && rate < v.MinSuccessRate {
			res.Warnings = append(res.Warnings, Finding{
				Stage: StageHistory, Severity: SeverityWarning, CallIndex: i,
				Message: fmt.Sprintf("%s success rate %.0f%% below threshold", call, rate*100),
			})
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// SchemaValidator checks required parameters and repairs near-miss
// parameter names by similarity.
type SchemaValidator struct {
	// ParamSimilarityThreshold gates near-miss repair, e.g.
	// "filepath" ~ "path". Default 0.5.
	ParamSimilarityThreshold float64
}

// NewSchemaValidator returns a schema validator with defaults.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{ParamSimilarityThreshold: 0.5}
}

func (*SchemaValidator) Name() string { return StageSchema }

func (v *SchemaValidator) Validate(_ context.Context, calls []todo.ToolCall, vctx *Context) *Result {
	res := &Result{Valid: true}
	if vctx == nil || vctx.Catalog == nil {
		return res
	}

	corrected := cloneCalls(calls)
	changed := false
	for i, call := range corrected {
		for _, required := range vctx.Catalog.RequiredParameters(call.Server, call.Tool) {
			if _, ok := call.Parameters[required]; ok {
				continue
			}
			if near, score := v.nearestParameter(call.Parameters, required); near != "" && score >= v.ParamSimilarityThreshold {
				corrected[i].Parameters[required] = call.Parameters[near]
				delete(corrected[i].Parameters, near)
				changed = true
				res.Corrections = append(res.Corrections, Correction{
					Stage: StageSchema, CallIndex: i, Field: "parameter", From: near, To: required,
				})
				continue
			}
			res.Errors = append(res.Errors, Finding{
				Stage: StageSchema, Severity: SeverityError, CallIndex: i,
				Message: fmt.Sprintf("%s missing required parameter %q", call, required),
			})
		}
	}
	if changed {
		res.CorrectedCalls = corrected
	}
	res.Valid = len(res.Errors) == 0
	return res
}

func (v *SchemaValidator) nearestParameter(params map[string]any, required string) (string, float64) {
	bestName, bestScore := "", 0.0
	for name := range params {
		if score := Similarity(name, required); score > bestScore {
			bestName, bestScore = name, score
		}
	}
	return bestName, bestScore
}

// CapabilityValidator checks that each tool exists on its provider and
// substitutes the closest catalog tool when similarity allows it.
type CapabilityValidator struct {
	// ToolSimilarityThreshold gates tool-name substitution. Default 0.7.
	ToolSimilarityThreshold float64
}

// NewCapabilityValidator returns a capability-sync validator with defaults.
func NewCapabilityValidator() *CapabilityValidator {
	return &CapabilityValidator{ToolSimilarityThreshold: 0.7}
}

func (*CapabilityValidator) Name() string { return StageCapabilitySync }

func (v *CapabilityValidator) Validate(_ context.Context, calls []todo.ToolCall, vctx *Context) *Result {
	res := &Result{Valid: true}
	if vctx == nil || vctx.Catalog == nil {
		return res
	}

	corrected := cloneCalls(calls)
	changed := false
	for i, call := range corrected {
		if vctx.Catalog.ToolExists(call.Server, call.Tool) {
			continue
		}
		near, score := vctx.Catalog.FindSimilarTool(call.Server, call.Tool)
		if near != "" && score >= v.ToolSimilarityThreshold {
			res.Corrections = append(res.Corrections, Correction{
				Stage: StageCapabilitySync, CallIndex: i, Field: "tool", From: call.Tool, To: near,
			})
			corrected[i].Tool = near
			changed = true
			continue
		}
		res.Errors = append(res.Errors, Finding{
			Stage: StageCapabilitySync, Severity: SeverityError, CallIndex: i,
			Message: fmt.Sprintf("tool %q does not exist on server %q and no close match found", call.Tool, call.Server),
		})
	}
	if changed {
		res.CorrectedCalls = corrected
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// cloneCalls deep-copies calls so validators never mutate their input.
func cloneCalls(calls []todo.ToolCall) []todo.ToolCall {
	out := make([]todo.ToolCall, len(calls))
	for i, call := range calls {
		out[i] = call
		if call.Parameters != nil {
			params := make(map[string]any, len(call.Parameters))
			for k, v := range call.Parameters {
				params[k] = v
			}
			out[i].Parameters = params
		}
	}
	return out
}
