package mcp

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
	"github.com/morikuni/failure/v2"
)

var validate = validator.New()

// decodeArgs copies the tool call arguments into out, matching json tags, and validates it
func decodeArgs(ctx context.Context, req mcp.CallToolRequest, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(req.GetArguments()); err != nil {
		return err
	}
	return validate.StructCtx(ctx, out)
}

func newServerTool(tool mcp.Tool, handler server.ToolHandlerFunc) server.ServerTool {
	return server.ServerTool{
		Tool:    tool,
		Handler: handler,
	}
}

// toolError reports err to the client as a failed tool call
func toolError(err error) *mcp.CallToolResult {
	msg := failure.MessageOf(err).String()
	if msg == "" {
		msg = err.Error()
	}
	return mcp.NewToolResultError(msg)
}

// jsonResult returns v as an indented JSON text result
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
