package domain

import "time"

// OperationKind names a CRUD verb recorded in the operation history.
type OperationKind string

const (
	OpRead   OperationKind = "read"
	OpUpdate OperationKind = "update"
	OpInsert OperationKind = "insert"
	OpDelete OperationKind = "delete"
)

// Operation is one entry of the mutation history.
type Operation struct {
	ID         string        `json:"id"`
	Kind       OperationKind `json:"kind"`
	DatasetKey string        `json:"dataset_key"`
	SheetName  string        `json:"sheet_name"`
	Column     string        `json:"column"`
	Value      string        `json:"value"`
	Affected   int           `json:"affected"`
	Confidence float64       `json:"confidence"`
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	CreatedAt  time.Time     `json:"created_at"`
}

// OperationLog persists the mutation history.
type OperationLog interface {
	Record(op *Operation) error
	List(limit int) ([]Operation, error)
}
