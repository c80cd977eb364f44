// Package mcptools exposes a [mixer.Mixer] to Model Context Protocol clients.
//
// Two tools are registered:
//
//   - mixer_call sends a prompt through the mixer and returns the provider
//     response together with the id of the provider that answered.
//   - mixer_stats returns the current statistics snapshot.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

const serverName = "modelmixer"

// CallInput is the argument object of the mixer_call tool.
type CallInput struct {
	Prompt  string         `json:"prompt" jsonschema:"the prompt forwarded to the selected provider"`
	Options map[string]any `json:"options,omitempty" jsonschema:"extra fields merged into the provider request body"`
}

// CallOutput is the structured result of the mixer_call tool.
type CallOutput struct {
	ProviderID   string `json:"providerId"`
	ProviderName string `json:"providerName"`
	Attempts     int    `json:"attempts"`
	Response     any    `json:"response"`
}

// StatsInput is the (empty) argument object of the mixer_stats tool.
type StatsInput struct{}

// NewServer returns an MCP server whose tools are backed by m.
func NewServer(m *mixer.Mixer, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "mixer_call",
		Description: "Send a prompt to one of the configured model providers, chosen by the active dispatch strategy.",
	}, callTool(m))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "mixer_stats",
		Description: "Report per-provider success and error counts, success rate and average response time.",
	}, statsTool(m))

	return srv
}

// Handler serves srv over the streamable HTTP transport.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func callTool(m *mixer.Mixer) mcp.ToolHandlerFor[CallInput, CallOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CallInput) (*mcp.CallToolResult, CallOutput, error) {
		res, err := m.Call(ctx, in.Prompt, in.Options)
		if err != nil {
			return nil, CallOutput{}, err
		}

		var body any
		if err := json.Unmarshal(res.Body, &body); err != nil {
			return nil, CallOutput{}, fmt.Errorf("mcptools: decode response from %s: %w", res.ProviderID, err)
		}
		return nil, CallOutput{
			ProviderID:   res.ProviderID,
			ProviderName: res.ProviderName,
			Attempts:     res.Attempts,
			Response:     body,
		}, nil
	}
}

func statsTool(m *mixer.Mixer) mcp.ToolHandlerFor[StatsInput, mixer.Stats] {
	return func(context.Context, *mcp.CallToolRequest, StatsInput) (*mcp.CallToolResult, mixer.Stats, error) {
		return nil, m.Stats(), nil
	}
}
