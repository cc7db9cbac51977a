// Package export produces XLSX workbooks of processed consignment records.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// Service exports stored records as an XLSX workbook.
type Service struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewService creates an export service.
func NewService(storage service.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{storage: storage, logger: logger}
}

var headers = []string{
	"ID", "Created At", "Status", "Status Message",
	"Bank", "Account/Convenio", "Amount", "Date", "Time",
	"Primary Identifier", "Payment Reference", "Confidence", "Provider",
}

// ExportXLSX writes all records matching the filter to an XLSX file at path.
func (s *Service) ExportXLSX(ctx context.Context, filter service.RecordFilter, path string) (int, error) {
	start := time.Now()

	records, err := s.storage.GetRecords(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to query records: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Consignaciones"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return 0, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return 0, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return 0, err
		}
	}

	for rowIdx := range records {
		r := &records[rowIdx]
		row := []any{
			r.ID, r.CreatedAt.Format(time.RFC3339), string(r.Status), r.StatusMessage,
			r.Bank, r.AccountOrConvenio, r.Amount, r.Date, r.Time,
			r.PrimaryIdentifier(), r.PaymentReference, r.Confidence, r.UsedProvider,
		}
		for colIdx, v := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return 0, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return 0, err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("exported records",
		"records", len(records),
		"path", path,
		"duration", time.Since(start))

	return len(records), nil
}

// StatusFilter builds the record filter for a list of status names.
func StatusFilter(statuses []string) service.RecordFilter {
	var filter service.RecordFilter
	for _, s := range statuses {
		if s != "" {
			filter.Statuses = append(filter.Statuses, model.RecordStatus(s))
		}
	}
	return filter
}
