package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("locate_and_edit",
		mcp.WithPromptDescription("Find where a column lives, review the matching rows, then apply a change"),
		mcp.WithArgument("column",
			mcp.ArgumentDescription("Column to work with, e.g. project_name"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("change",
			mcp.ArgumentDescription("What should change, in plain words"),
			mcp.RequiredArgument(),
		),
	), s.handleLocateAndEditPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("find_anywhere",
		mcp.WithPromptDescription("Search every sheet for a piece of text and summarize where it appears"),
		mcp.WithArgument("text",
			mcp.ArgumentDescription("Text to look for"),
			mcp.RequiredArgument(),
		),
	), s.handleFindAnywherePrompt)
}

func (s *Server) handleLocateAndEditPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	column := req.Params.Arguments["column"]
	change := req.Params.Arguments["change"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Edit rows by %s", column),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Apply this change using the "%s" column: %s

1. Call predict_location with column_name "%s" (and a value if one is known) to see which dataset and sheet will be used
2. If the confidence is low, try a more specific column name or add a column_value before going further
3. Call read_rows to review the rows that will be touched
4. Apply the change with update_rows, insert_row or delete_rows
5. Call read_rows again and report what changed

update_rows and delete_rows rewrite the whole file. Confirm with the user before deleting.`, column, change, column),
				},
			},
		},
	}, nil
}

func (s *Server) handleFindAnywherePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := req.Params.Arguments["text"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Find %q across all datasets", text),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Find every place "%s" appears.

1. Call search_text with search_text "%s" and max_results 50
2. Group the hits by dataset and sheet
3. For each group, name the column the text was found in and show one full record as an example`, text, text),
				},
			},
		},
	}, nil
}
