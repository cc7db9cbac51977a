package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// SaveRecords persists a batch of consignment records in one transaction.
func (s *SQLiteStorage) SaveRecords(ctx context.Context, records []model.ConsignmentRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, image_ref, image_hash, created_at, status, status_message, amount, date, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			status_message = excluded.status_message,
			result_json = excluded.result_json`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if err := validateString(r.ID, "record.ID"); err != nil {
			return err
		}

		resultJSON, err := json.Marshal(r.ExtractionResult)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
		}

		if _, err := stmt.ExecContext(ctx, r.ID, r.ImageRef, r.ImageHash, r.CreatedAt,
			r.Status, r.StatusMessage, r.Amount, r.Date, string(resultJSON)); err != nil {
			return fmt.Errorf("failed to save record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// GetRecords returns records matching the filter, in creation order.
func (s *SQLiteStorage) GetRecords(ctx context.Context, filter service.RecordFilter) ([]model.ConsignmentRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, image_ref, image_hash, created_at, status, status_message, result_json FROM records`
	var conditions []string
	var args []any

	if filter.StartDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *filter.EndDate)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ConsignmentRecord
	for rows.Next() {
		var r model.ConsignmentRecord
		var resultJSON string
		if err := rows.Scan(&r.ID, &r.ImageRef, &r.ImageHash, &r.CreatedAt, &r.Status, &r.StatusMessage, &resultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &r.ExtractionResult); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// GetAcceptedRecords returns the locally stored records that passed
// validation, the local half of the duplicate-check corpus.
func (s *SQLiteStorage) GetAcceptedRecords(ctx context.Context) ([]model.ConsignmentRecord, error) {
	return s.GetRecords(ctx, service.RecordFilter{Statuses: []model.RecordStatus{model.StatusValid}})
}

// UpdateRecordStatus upgrades the status of one record without touching its
// extracted fields.
func (s *SQLiteStorage) UpdateRecordStatus(ctx context.Context, id string, status model.RecordStatus, message string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE records SET status = ?, status_message = ? WHERE id = ?`, status, message, id)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}
