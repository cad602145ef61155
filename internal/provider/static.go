package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/taskd/internal/todo"
	"github.com/fyrsmithlabs/taskd/internal/validation"
)

// InvokeFunc executes one tool call for a StaticCapability server.
type InvokeFunc func(ctx context.Context, call todo.ToolCall) (*InvokeResult, error)

// StaticCapability serves fixed catalogs from memory. It backs tests
// and dry runs where spawning real tool servers is unwanted.
type StaticCapability struct {
	mu       sync.RWMutex
	servers  []string
	catalogs map[string][]ToolInfo
	invokers map[string]InvokeFunc
}

// NewStaticCapability creates an empty capability.
func NewStaticCapability() *StaticCapability {
	return &StaticCapability{
		catalogs: make(map[string][]ToolInfo),
		invokers: make(map[string]InvokeFunc),
	}
}

// AddServer registers a server with its catalog. A nil invoke makes
// every call succeed with empty output.
func (s *StaticCapability) AddServer(name string, tools []ToolInfo, invoke InvokeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalogs[name]; !ok {
		s.servers = append(s.servers, name)
	}
	s.catalogs[name] = tools
	if invoke == nil {
		invoke = func(context.Context, todo.ToolCall) (*InvokeResult, error) {
			return &InvokeResult{Success: true}, nil
		}
	}
	s.invokers[name] = invoke
}

func (s *StaticCapability) Servers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.servers...)
}

func (s *StaticCapability) Tools(server string) []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ToolInfo(nil), s.catalogs[server]...)
}

func (s *StaticCapability) ToolExists(server, tool string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, info := range s.catalogs[server] {
		if info.Name == tool {
			return true
		}
	}
	return false
}

func (s *StaticCapability) FindSimilarTool(server, tool string) (string, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best string
	var bestScore float64
	for _, info := range s.catalogs[server] {
		if score := validation.Similarity(tool, info.Name); score > bestScore {
			best, bestScore = info.Name, score
		}
	}
	return best, bestScore
}

func (s *StaticCapability) RequiredParameters(server, tool string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, info := range s.catalogs[server] {
		if info.Name == tool {
			return append([]string(nil), info.Required...)
		}
	}
	return nil
}

func (s *StaticCapability) Invoke(ctx context.Context, call todo.ToolCall) (*InvokeResult, error) {
	s.mu.RLock()
	invoke, ok := s.invokers[call.Server]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown server %q", call.Server)
	}
	if !s.ToolExists(call.Server, call.Tool) {
		return &InvokeResult{Success: false, Error: fmt.Sprintf("unknown tool %q", call.Tool)}, nil
	}
	return invoke(ctx, call)
}

var _ Capability = (*StaticCapability)(nil)
