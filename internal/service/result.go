package service

import "sheetlocator/internal/domain"

// Reason classifies an unsuccessful Result.
type Reason string

const (
	ReasonLowConfidence   Reason = "low_confidence"
	ReasonNoMatch         Reason = "no_match"
	ReasonUnknownLocation Reason = "unknown_location"
	ReasonInvalidInput    Reason = "invalid_input"
)

// Result is the outcome of a CRUD operation. Rejections are Results with
// Success false; only backing store failures are returned as errors.
type Result struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message"`
	Reason            Reason             `json:"reason,omitempty"`
	Data              []domain.RowObject `json:"data,omitempty"`
	PredictedLocation *domain.Prediction `json:"predicted_location,omitempty"`
	TotalRecords      *int               `json:"total_records,omitempty"`

	Affected int `json:"-"`
}

func reject(reason Reason, msg string) Result {
	return Result{Message: msg, Reason: reason}
}

// SearchHit is one cell matching a text search.
type SearchHit struct {
	DatasetKey string           `json:"dataset_key"`
	Sheet      string           `json:"sheet"`
	Column     string           `json:"column"`
	Value      domain.Value     `json:"value"`
	FullRecord domain.RowObject `json:"full_record"`
}

type SearchResult struct {
	Success      bool        `json:"success"`
	SearchText   string      `json:"search_text"`
	ResultsFound int         `json:"results_found"`
	Results      []SearchHit `json:"results"`
}

// Info summarizes what is loaded.
type Info struct {
	Status       string   `json:"status"`
	TotalFiles   int      `json:"total_files"`
	TotalSheets  int      `json:"total_sheets"`
	TotalColumns int      `json:"total_columns"`
	LoadedFiles  []string `json:"loaded_files"`
}

// ── Requests ───────────────────────────────────────────────

type ReadRequest struct {
	ColumnName  string `json:"column_name"`
	ColumnValue string `json:"column_value,omitempty"`
}

type UpdateRequest struct {
	ColumnName   string       `json:"column_name"`
	ColumnValue  string       `json:"column_value"`
	UpdateColumn string       `json:"update_column"`
	UpdateValue  domain.Value `json:"update_value"`
}

type InsertRequest struct {
	Data domain.OrderedFields `json:"data"`
}

type DeleteRequest struct {
	ColumnName  string `json:"column_name"`
	ColumnValue string `json:"column_value"`
}

type SearchRequest struct {
	SearchText string `json:"search_text"`
	MaxResults int    `json:"max_results,omitempty"`
}
