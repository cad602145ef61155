// Package mcptool adapts MCP tool servers to the engine's Capability
// contract. Each configured server is spawned as a subprocess on a
// stdio transport; catalogs are fetched once at connect time and
// served from memory afterwards.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/todo"
	"github.com/fyrsmithlabs/taskd/internal/validation"
)

// ServerConfig describes one MCP server to spawn.
type ServerConfig struct {
	// Name is the server's capability name, e.g. "filesystem".
	Name string `koanf:"name"`

	// Command and Args launch the server process.
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`

	// Env is appended to the inherited environment, KEY=VALUE form.
	Env []string `koanf:"env"`
}

// catalog is the cached tool inventory for one connected server.
type catalog struct {
	session  *mcp.ClientSession
	tools    []provider.ToolInfo
	required map[string][]string
}

// Capability connects to the configured MCP servers and serves their
// combined catalogs. Safe for concurrent use after Connect.
type Capability struct {
	client *mcp.Client
	logger *zap.Logger

	mu       sync.RWMutex
	servers  []string
	catalogs map[string]*catalog
}

// New creates a disconnected capability. Call Connect before use.
func New(logger *zap.Logger) *Capability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capability{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "taskd",
			Version: "1.0.0",
		}, nil),
		logger:   logger,
		catalogs: make(map[string]*catalog),
	}
}

// Connect spawns each configured server, performs the MCP handshake,
// and caches its tool catalog. Partial failure aborts and disconnects
// the servers already up.
func (c *Capability) Connect(ctx context.Context, configs []ServerConfig) error {
	for _, cfg := range configs {
		if cfg.Name == "" || cfg.Command == "" {
			return fmt.Errorf("mcptool: server name and command required")
		}
		if err := c.connectOne(ctx, cfg); err != nil {
			c.Close()
			return fmt.Errorf("mcptool: connect %s: %w", cfg.Name, err)
		}
	}
	return nil
}

func (c *Capability) connectOne(ctx context.Context, cfg ServerConfig) error {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	session, err := c.client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return err
	}

	listing, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		session.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	cat := &catalog{
		session:  session,
		required: make(map[string][]string),
	}
	for _, tool := range listing.Tools {
		info := provider.ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if tool.InputSchema != nil {
			// The SDK delivers the schema as an untyped JSON value;
			// round-trip it through jsonschema.Schema to read Required.
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				var schema jsonschema.Schema
				if json.Unmarshal(raw, &schema) == nil {
					info.Required = append(info.Required, schema.Required...)
				}
			}
		}
		cat.tools = append(cat.tools, info)
		cat.required[tool.Name] = info.Required
	}

	c.mu.Lock()
	c.servers = append(c.servers, cfg.Name)
	c.catalogs[cfg.Name] = cat
	c.mu.Unlock()

	c.logger.Info("connected capability server",
		zap.String("server", cfg.Name),
		zap.Int("tools", len(cat.tools)))
	return nil
}

// Close disconnects every server. Safe to call more than once.
func (c *Capability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, cat := range c.catalogs {
		if err := cat.session.Close(); err != nil {
			c.logger.Warn("close capability server", zap.String("server", name), zap.Error(err))
		}
	}
	c.catalogs = make(map[string]*catalog)
	c.servers = nil
}

func (c *Capability) Servers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.servers...)
}

func (c *Capability) Tools(server string) []provider.ToolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.catalogs[server]
	if !ok {
		return nil
	}
	return append([]provider.ToolInfo(nil), cat.tools...)
}

func (c *Capability) ToolExists(server, tool string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.catalogs[server]
	if !ok {
		return false
	}
	_, ok = cat.required[tool]
	return ok
}

// FindSimilarTool returns the catalog tool closest to the requested
// name and their similarity, 0 when the server is unknown or empty.
func (c *Capability) FindSimilarTool(server, tool string) (string, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.catalogs[server]
	if !ok {
		return "", 0
	}
	var best string
	var bestScore float64
	for _, info := range cat.tools {
		if score := validation.Similarity(tool, info.Name); score > bestScore {
			best, bestScore = info.Name, score
		}
	}
	return best, bestScore
}

func (c *Capability) RequiredParameters(server, tool string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.catalogs[server]
	if !ok {
		return nil
	}
	return append([]string(nil), cat.required[tool]...)
}

// Invoke executes one tool call against its server's session. Protocol
// errors become Go errors; tool-reported errors come back as an
// unsuccessful InvokeResult.
func (c *Capability) Invoke(ctx context.Context, call todo.ToolCall) (*provider.InvokeResult, error) {
	c.mu.RLock()
	cat, ok := c.catalogs[call.Server]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcptool: unknown server %q", call.Server)
	}

	res, err := cat.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Tool,
		Arguments: call.Parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("mcptool: call %s/%s: %w", call.Server, call.Tool, err)
	}

	output := renderContent(res.Content)
	if res.IsError {
		return &provider.InvokeResult{Success: false, Error: output}, nil
	}
	return &provider.InvokeResult{Success: true, Output: output}, nil
}

// renderContent flattens result content into one string. Non-text
// blocks are carried as JSON so nothing is silently dropped.
func renderContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		switch v := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if raw, err := json.Marshal(v); err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}

var _ provider.Capability = (*Capability)(nil)
