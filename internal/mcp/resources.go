package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/bunrui/internal/model"
)

const taxonomyURI = "bunrui://taxonomy"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			taxonomyURI,
			"Category Taxonomy",
			mcplib.WithResourceDescription("The closed set of category labels a domain can map to"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTaxonomy,
	)
}

func (s *Server) handleTaxonomy(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(map[string]any{
		"assignable": model.AssignableCategories,
		"fallback":   model.CategoryUncategorized,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal taxonomy: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      taxonomyURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
