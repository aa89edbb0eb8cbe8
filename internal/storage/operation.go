package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetlocator/internal/domain"
)

const defaultHistoryLimit = 50

// OperationStore implements domain.OperationLog using SQLite.
type OperationStore struct {
	db *DB
}

func NewOperationStore(db *DB) *OperationStore {
	return &OperationStore{db: db}
}

// Record appends op to the history, assigning its ID and timestamp.
func (s *OperationStore) Record(op *domain.Operation) error {
	op.ID = uuid.NewString()
	op.CreatedAt = time.Now().UTC()
	_, err := s.db.Conn().Exec(
		`INSERT INTO operations (id, kind, dataset_key, sheet_name, column_name, value, affected, confidence, success, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Kind, op.DatasetKey, op.SheetName, op.Column, op.Value, op.Affected, op.Confidence, op.Success, op.Message, op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// List returns up to limit operations, newest first.
func (s *OperationStore) List(limit int) ([]domain.Operation, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.Conn().Query(
		`SELECT id, kind, dataset_key, sheet_name, column_name, value, affected, confidence, success, message, created_at FROM operations ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	ops := make([]domain.Operation, 0)
	for rows.Next() {
		var op domain.Operation
		if err := rows.Scan(&op.ID, &op.Kind, &op.DatasetKey, &op.SheetName, &op.Column, &op.Value, &op.Affected, &op.Confidence, &op.Success, &op.Message, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
