package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Prompt construction and response parsing shared by the reasoner
// adapters. Each operation asks for a single JSON object so parsing is
// uniform across providers.

const DecomposeSystem = `You decompose a high-level request into an ordered todo list.
Each item does one thing and has a verifiable success criterion.
Dependencies reference earlier item IDs. Respond with JSON only:
{"todos":[{"id":"1","action":"...","success_criteria":"...","dependencies":[],"priority":"normal","optional":false}]}`

const SelectSystem = `You pick which tool servers are relevant to one todo item.
Respond with JSON only:
{"servers":["..."],"prompts":{"server":"guidance"}}`

const PlanSystem = `You plan concrete tool calls for one todo item, using only the
listed servers and their tools. Respond with JSON only:
{"tool_calls":[{"server":"...","tool":"...","parameters":{}}],"success":true,"error":""}`

const VerifySystem = `You judge whether a todo item's success criteria are met, given
execution evidence. Be strict: uncertain means not verified.
Respond with JSON only:
{"verified":false,"confidence":0,"reason":"..."}`

const ReplanSystem = `You analyze a failed todo item and decide how to proceed.
Strategies: "retry" (same item again), "decompose" (replace with smaller
child items), "skip" (abandon, non-essential), "fail" (terminal).
Respond with JSON only:
{"replanned":true,"strategy":"retry","new_items":[{"action":"...","success_criteria":"..."}],"reasoning":"..."}`

// decomposeResponse is the wire form of a decomposition.
type decomposeResponse struct {
	Todos []struct {
		ID              string   `json:"id"`
		Action          string   `json:"action"`
		SuccessCriteria string   `json:"success_criteria"`
		Dependencies    []string `json:"dependencies"`
		Priority        string   `json:"priority"`
		Optional        bool     `json:"optional"`
	} `json:"todos"`
}

// BuildDecomposePrompt renders the user turn for Decompose.
func BuildDecomposePrompt(request string) string {
	return "Request:\n" + request
}

// ParseDecomposition converts the reasoner's JSON into a todo list.
func ParseDecomposition(raw, request string) (*todo.List, error) {
	var resp decomposeResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse decomposition: %w", err)
	}
	if len(resp.Todos) == 0 {
		return nil, fmt.Errorf("parse decomposition: no items")
	}

	list := todo.NewList(request)
	for i, t := range resp.Todos {
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		item := todo.NewItem(id, t.Action, t.SuccessCriteria, t.Dependencies...)
		item.Optional = t.Optional
		switch todo.Priority(t.Priority) {
		case todo.PriorityLow, todo.PriorityHigh:
			item.Priority = todo.Priority(t.Priority)
		}
		if err := list.Add(item); err != nil {
			return nil, fmt.Errorf("parse decomposition: item %q: %w", id, err)
		}
	}
	return list, nil
}

// buildItemContext renders the shared item + list context block.
func buildItemContext(item *todo.Item, listCtx *ListContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item %s: %s\nSuccess criteria: %s\n", item.ID, item.Action, item.SuccessCriteria)
	if listCtx != nil {
		fmt.Fprintf(&b, "\nOriginal request: %s\n", listCtx.Request)
		if len(listCtx.Items) > 0 {
			b.WriteString("\nFull list:\n")
			for _, it := range listCtx.Items {
				fmt.Fprintf(&b, "  %s [%s] %s\n", it.ID, it.Status, it.Action)
			}
		}
	}
	return b.String()
}

func BuildSelectPrompt(item *todo.Item, listCtx *ListContext, servers []string) string {
	var b strings.Builder
	b.WriteString(buildItemContext(item, listCtx))
	b.WriteString("\nAvailable servers: " + strings.Join(servers, ", ") + "\n")
	return b.String()
}

func ParseSelection(raw string) (*ServerSelection, error) {
	var sel ServerSelection
	if err := decodeJSON(raw, &sel); err != nil {
		return nil, fmt.Errorf("parse server selection: %w", err)
	}
	if len(sel.Servers) == 0 {
		return nil, fmt.Errorf("parse server selection: no servers")
	}
	return &sel, nil
}

func BuildPlanPrompt(item *todo.Item, listCtx *ListContext, servers []string, catalogs string) string {
	var b strings.Builder
	b.WriteString(buildItemContext(item, listCtx))
	b.WriteString("\nAllowed servers: " + strings.Join(servers, ", ") + "\n")
	if catalogs != "" {
		b.WriteString("\nTool catalogs:\n" + catalogs)
	}
	return b.String()
}

func ParsePlan(raw string) (*PlanResult, error) {
	var plan PlanResult
	if err := decodeJSON(raw, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}

func BuildVerifyPrompt(item *todo.Item, results []todo.CallResult, method string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item %s: %s\nSuccess criteria: %s\nMethod: %s\n\nEvidence:\n",
		item.ID, item.Action, item.SuccessCriteria, method)
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.Error
		}
		fmt.Fprintf(&b, "  %s/%s -> %s\n", r.Call.Server, r.Call.Tool, status)
		if r.Output != "" {
			fmt.Fprintf(&b, "    output: %s\n", truncate(r.Output, 2000))
		}
	}
	return b.String()
}

func ParseVerification(raw string) (*todo.VerificationResult, error) {
	var v todo.VerificationResult
	if err := decodeJSON(raw, &v); err != nil {
		return nil, fmt.Errorf("parse verification: %w", err)
	}
	return &v, nil
}

func BuildReplanPrompt(item *todo.Item, execEvidence []todo.CallResult, verifyEvidence *todo.VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item %s: %s\nSuccess criteria: %s\nAttempts: %d of %d\n",
		item.ID, item.Action, item.SuccessCriteria, item.Attempts, item.MaxAttempts)
	if item.Optional {
		b.WriteString("The item is optional.\n")
	}
	if len(item.Failures) > 0 {
		b.WriteString("\nFailure history:\n")
		for _, f := range item.Failures {
			fmt.Fprintf(&b, "  attempt %d, stage %s: %s\n", f.Attempt, f.Stage, f.Reason)
		}
	}
	if len(execEvidence) > 0 {
		b.WriteString("\nLast execution:\n")
		for _, r := range execEvidence {
			status := "ok"
			if !r.Success {
				status = "failed: " + r.Error
			}
			fmt.Fprintf(&b, "  %s/%s -> %s\n", r.Call.Server, r.Call.Tool, status)
		}
	}
	if verifyEvidence != nil {
		fmt.Fprintf(&b, "\nVerification: verified=%t confidence=%.0f reason=%s\n",
			verifyEvidence.Verified, verifyEvidence.Confidence, verifyEvidence.Reason)
	}
	return b.String()
}

// replanResponse mirrors ReplanDecision but keeps new items in wire form
// so IDs stay unset.
type replanResponse struct {
	Replanned bool   `json:"replanned"`
	Strategy  string `json:"strategy"`
	NewItems  []struct {
		Action          string   `json:"action"`
		SuccessCriteria string   `json:"success_criteria"`
		Dependencies    []string `json:"dependencies"`
	} `json:"new_items"`
	Reasoning string `json:"reasoning"`
}

func ParseReplan(raw string) (*ReplanDecision, error) {
	var resp replanResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse replan: %w", err)
	}
	dec := &ReplanDecision{
		Replanned: resp.Replanned,
		Reasoning: resp.Reasoning,
	}
	switch s := ReplanStrategy(resp.Strategy); s {
	case StrategyRetry, StrategyDecompose, StrategySkip, StrategyFail:
		dec.Strategy = s
	default:
		return nil, fmt.Errorf("parse replan: unknown strategy %q", resp.Strategy)
	}
	for _, n := range resp.NewItems {
		item := todo.NewItem("", n.Action, n.SuccessCriteria, n.Dependencies...)
		dec.NewItems = append(dec.NewItems, item)
	}
	if dec.Strategy == StrategyDecompose && len(dec.NewItems) == 0 {
		return nil, fmt.Errorf("parse replan: decompose with no new items")
	}
	return dec, nil
}

// decodeJSON unmarshals the first JSON object in raw, tolerating
// surrounding prose and markdown fences.
func decodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "```"); i >= 0 {
		raw = raw[i+3:]
		raw = strings.TrimPrefix(raw, "json")
		if j := strings.Index(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// CatalogSummary renders a capability's tool catalogs for planning
// prompts.
func CatalogSummary(c Capability, servers []string) string {
	var b strings.Builder
	for _, server := range servers {
		fmt.Fprintf(&b, "%s:\n", server)
		for _, tool := range c.Tools(server) {
			fmt.Fprintf(&b, "  %s", tool.Name)
			if len(tool.Required) > 0 {
				fmt.Fprintf(&b, " (requires: %s)", strings.Join(tool.Required, ", "))
			}
			if tool.Description != "" {
				fmt.Fprintf(&b, " - %s", truncate(tool.Description, 120))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
