package service

import (
	"errors"
	"fmt"

	"github.com/louisbranch/macrotable/internal/services/mcp/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolBinding pairs a tool definition with its typed handler. The generic
// constructor keeps the input and output types checked at compile time.
type toolBinding struct {
	name     string
	register func(*mcp.Server)
}

func bindTool[I, O any](tool *mcp.Tool, handler mcp.ToolHandlerFor[I, O]) toolBinding {
	if tool == nil {
		return toolBinding{}
	}
	return toolBinding{
		name:     tool.Name,
		register: func(server *mcp.Server) { mcp.AddTool(server, tool, handler) },
	}
}

// macroTools lists every tool this server exposes. Tools that need the
// macro API call it through client.
func macroTools(client domain.MacroClient) []toolBinding {
	return []toolBinding{
		bindTool(domain.CounteractEvaluateTool(), domain.CounteractEvaluateHandler(client)),
		bindTool(domain.CounteractExplainTool(), domain.CounteractExplainHandler(client)),
		bindTool(domain.CounteractCheckTool(), domain.CounteractCheckHandler(client)),
		bindTool(domain.WhirlingThrowDamageTool(), domain.WhirlingThrowDamageHandler()),
		bindTool(domain.WhirlingThrowTool(), domain.WhirlingThrowHandler(client)),
		bindTool(domain.RulesVersionTool(), domain.RulesVersionHandler()),
	}
}

func registerTools(server *mcp.Server, bindings []toolBinding) error {
	if server == nil {
		return errors.New("mcp server is required")
	}
	seen := make(map[string]bool, len(bindings))
	for i, binding := range bindings {
		if binding.register == nil {
			return fmt.Errorf("tool %d has no definition", i)
		}
		if seen[binding.name] {
			return fmt.Errorf("tool %q registered twice", binding.name)
		}
		seen[binding.name] = true
		binding.register(server)
	}
	return nil
}
