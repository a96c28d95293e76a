package toolbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/wirebird/chatmcp"
)

const (
	serverInfoURI     = "info://server"
	greetingURIPrefix = "greeting://"
	greetingTemplate  = "greeting://{name}"
	textMimeType      = "text/plain"
)

const serverInfoText = "This server exposes a small set of arithmetic, filesystem and clock tools " +
	"over the Model Context Protocol, together with a greeting resource and prompt."

// ListResources implements mcp.ResourceServer interface.
func (s Server) ListResources(context.Context, mcp.ListResourcesParams) (mcp.ListResourcesResult, error) {
	return mcp.ListResourcesResult{
		Resources: []mcp.Resource{
			{
				URI:         serverInfoURI,
				Name:        "Server Info",
				Description: "Short description of this server and its capabilities",
				MimeType:    textMimeType,
			},
		},
	}, nil
}

// ReadResource implements mcp.ResourceServer interface. Besides the static
// resources it resolves concrete URIs of the greeting template, so reading
// greeting://Alice produces a personalized text.
func (s Server) ReadResource(_ context.Context, params mcp.ReadResourceParams) (mcp.ReadResourceResult, error) {
	switch {
	case params.URI == serverInfoURI:
		return textResource(params.URI, serverInfoText), nil
	case strings.HasPrefix(params.URI, greetingURIPrefix):
		name := strings.TrimPrefix(params.URI, greetingURIPrefix)
		if name == "" {
			return mcp.ReadResourceResult{}, fmt.Errorf("greeting resource requires a name: %s", params.URI)
		}
		text := fmt.Sprintf("Hello, %s! This is a personalized greeting resource.", name)
		return textResource(params.URI, text), nil
	default:
		return mcp.ReadResourceResult{}, fmt.Errorf("resource not found: %s", params.URI)
	}
}

// ListResourceTemplates implements mcp.ResourceServer interface.
func (s Server) ListResourceTemplates(
	context.Context,
	mcp.ListResourceTemplatesParams,
) (mcp.ListResourceTemplatesResult, error) {
	return mcp.ListResourceTemplatesResult{
		Templates: []mcp.ResourceTemplate{
			{
				URITemplate: greetingTemplate,
				Name:        "Personalized Greeting",
				Description: "A greeting addressed to the name embedded in the URI",
				MimeType:    textMimeType,
			},
		},
	}, nil
}

func textResource(uri, text string) mcp.ReadResourceResult {
	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			{
				URI:      uri,
				MimeType: textMimeType,
				Text:     text,
			},
		},
	}
}
