package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"polychat/config"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// protocolVersion is the MCP revision sent during initialization.
const protocolVersion = "2025-06-18"

// nameSeparator joins a server name and a tool name. Provider APIs only
// accept [a-zA-Z0-9_-] in function names, so a dot cannot be used.
const nameSeparator = "__"

// Server is one connected MCP tool server.
type Server struct {
	Name   string
	client *client.Client
	tools  []Tool
}

// StartStdio launches command as a stdio MCP server, initializes it and
// lists its tools. env entries are added to the current environment.
func StartStdio(ctx context.Context, name, command string, args []string, env map[string]string) (*Server, error) {
	environ := os.Environ()
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		return cmd, nil
	}
	c, err := client.NewStdioMCPClientWithOptions(command, environ, args, transport.WithCommandFunc(cmdFunc))
	if err != nil {
		return nil, fmt.Errorf("failed to start tool server %s: %w", name, err)
	}
	s, err := Connect(ctx, name, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

// Connect initializes an already started client and lists its tools.
func Connect(ctx context.Context, name string, c *client.Client) (*Server, error) {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "polychat",
				Version: "1.0.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("failed to initialize tool server %s: %w", name, err)
	}
	res, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools for %s: %w", name, err)
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Connected to %s with %d tools", name, len(res.Tools))
	}
	return &Server{Name: name, client: c, tools: res.Tools}, nil
}

// Tools returns the server's tools with their names prefixed by the server
// name.
func (s *Server) Tools() []Tool {
	out := make([]Tool, len(s.tools))
	for i, t := range s.tools {
		t.Name = s.Name + nameSeparator + t.Name
		out[i] = t
	}
	return out
}

func (s *Server) Close() error {
	return s.client.Close()
}

// Result is the outcome of one tool call, flattened to text.
type Result struct {
	Content string
	IsError bool
}

// Registry routes namespaced tool calls to the servers that own them.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*Server)}
}

// Add registers s, replacing any server with the same name.
func (r *Registry) Add(s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[s.Name] = s
}

// Tools lists every registered tool, namespaced.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, s := range r.servers {
		out = append(out, s.Tools()...)
	}
	return out
}

// Call executes a namespaced tool with JSON arguments. A tool that reports
// failure yields a Result with IsError set, not an error; errors are
// reserved for calls that could not be made.
func (r *Registry) Call(ctx context.Context, name, arguments string) (Result, error) {
	server, tool, ok := strings.Cut(name, nameSeparator)
	if !ok {
		return Result{}, fmt.Errorf("tool name %q has no server prefix", name)
	}
	r.mu.RLock()
	s := r.servers[server]
	r.mu.RUnlock()
	if s == nil {
		return Result{}, fmt.Errorf("no tool server named %q", server)
	}

	var args map[string]any
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return Result{}, fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}

	res, err := s.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{Name: tool, Arguments: args},
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to call %s: %w", name, err)
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] %s returned %d content items (error=%v)", name, len(res.Content), res.IsError)
	}
	return Result{Content: resultText(res), IsError: res.IsError}, nil
}

// Close closes every server.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.servers {
		if err := s.Close(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] failed to close %s: %v", name, err)
		}
	}
	r.servers = map[string]*Server{}
}

// resultText joins text content; other content kinds are kept as JSON.
func resultText(res *mcptypes.CallToolResult) string {
	if len(res.Content) == 0 {
		return "Tool executed successfully (no output)"
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcptypes.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			parts = append(parts, fmt.Sprintf("(unreadable content: %v)", err))
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n")
}
