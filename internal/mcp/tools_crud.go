package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/service"
)

func (s *Server) registerCrudTools() {
	// ── predict_location ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("predict_location",
		mcp.WithDescription("Predict which dataset and sheet hold a column, optionally disambiguated by a value"),
		mcp.WithString("column_name", mcp.Description("Column name, e.g. project_name"), mcp.Required()),
		mcp.WithString("column_value", mcp.Description("A value the column should contain (optional)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePredict)

	// ── read_rows ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("read_rows",
		mcp.WithDescription("Read the rows whose column equals a value (case-insensitive). Without a value, every row of the predicted sheet is returned."),
		mcp.WithString("column_name", mcp.Description("Column to filter on"), mcp.Required()),
		mcp.WithString("column_value", mcp.Description("Value to match (optional)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleRead)

	// ── update_rows ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_rows",
		mcp.WithDescription("Set update_column to update_value on every row whose column_name equals column_value. Rewrites the whole file."),
		mcp.WithString("column_name", mcp.Description("Column to match on"), mcp.Required()),
		mcp.WithString("column_value", mcp.Description("Value to match (case-insensitive)"), mcp.Required()),
		mcp.WithString("update_column", mcp.Description("Column to write"), mcp.Required()),
		mcp.WithString("update_value", mcp.Description(`New value; JSON scalars such as 42, true or null are typed`), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleUpdate)

	// ── insert_row ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_row",
		mcp.WithDescription("Append one row. The location is predicted from the first field; unknown fields are dropped and missing columns are null."),
		mcp.WithString("data", mcp.Description(`Row as a JSON object, e.g. {"project_name": "Atlas", "status": "Active"}`), mcp.Required()),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleInsert)

	// ── delete_rows ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_rows",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete every row whose column equals a value (case-insensitive). Rewrites the whole file."),
		mcp.WithString("column_name", mcp.Description("Column to match on"), mcp.Required()),
		mcp.WithString("column_value", mcp.Description("Value to match"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDelete)

	// ── search_text ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("search_text",
		mcp.WithDescription("Find cells containing text in any text column of any sheet"),
		mcp.WithString("search_text", mcp.Description("Text to look for (case-insensitive)"), mcp.Required()),
		mcp.WithNumber("max_results", mcp.Description("Maximum hits (default 10)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleSearch)

	// ── dataset_info ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("dataset_info",
		mcp.WithDescription("Summarize the loaded datasets"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleInfo)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handlePredict(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	column, err := req.RequireString("column_name")
	if err != nil {
		return nil, err
	}
	return jsonResult(s.svc.Predict(column, req.GetString("column_value", "")))
}

func (s *Server) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	column, err := req.RequireString("column_name")
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Read(ctx, service.ReadRequest{
		ColumnName:  column,
		ColumnValue: req.GetString("column_value", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return jsonResult(res)
}

func (s *Server) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	column, _ := args["column_name"].(string)
	value, _ := args["column_value"].(string)
	updateColumn, _ := args["update_column"].(string)
	if column == "" || value == "" || updateColumn == "" {
		return nil, fmt.Errorf("column_name, column_value and update_column are required")
	}
	raw, ok := args["update_value"]
	if !ok {
		return nil, fmt.Errorf("update_value is required")
	}

	res, err := s.svc.Update(ctx, service.UpdateRequest{
		ColumnName:   column,
		ColumnValue:  value,
		UpdateColumn: updateColumn,
		UpdateValue:  scalarArg(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("update rows: %w", err)
	}
	return jsonResult(res)
}

func (s *Server) handleInsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dataJSON, err := req.RequireString("data")
	if err != nil {
		return nil, err
	}
	var data domain.OrderedFields
	if err := parseJSON(dataJSON, &data); err != nil {
		return nil, fmt.Errorf("parse data JSON: %w", err)
	}

	res, err := s.svc.Insert(ctx, service.InsertRequest{Data: data})
	if err != nil {
		return nil, fmt.Errorf("insert row: %w", err)
	}
	return jsonResult(res)
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	column, err := req.RequireString("column_name")
	if err != nil {
		return nil, err
	}
	value, err := req.RequireString("column_value")
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Delete(ctx, service.DeleteRequest{ColumnName: column, ColumnValue: value})
	if err != nil {
		return nil, fmt.Errorf("delete rows: %w", err)
	}
	return jsonResult(res)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("search_text")
	if err != nil {
		return nil, err
	}
	return jsonResult(s.svc.Search(ctx, service.SearchRequest{
		SearchText: text,
		MaxResults: int(req.GetFloat("max_results", 0)),
	}))
}

func (s *Server) handleInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Info())
}
