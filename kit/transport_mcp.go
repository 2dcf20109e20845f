package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Schema reflects the JSON Schema of T as a plain object map, the form
// MCP tool definitions carry.
func Schema[T any]() (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("kit: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("kit: decode schema: %w", err)
	}
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}
	m["type"] = "object"
	return m, nil
}

// RegisterTool registers endpoint as an MCP tool whose arguments decode
// into a *Req. The input schema is reflected from Req. Endpoint errors
// become tool errors, not protocol errors.
func RegisterTool[Req any](srv *mcp.Server, name, description string, endpoint Endpoint) error {
	schema, err := Schema[Req]()
	if err != nil {
		return err
	}
	tool := &mcp.Tool{Name: name, Description: description, InputSchema: schema}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in Req
		if args := req.Params.Arguments; len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		ctx = WithTransport(ctx, "mcp")

		resp, err := endpoint(ctx, &in)
		if err != nil {
			return toolError(errors.New(err.Error())), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
	return nil
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
