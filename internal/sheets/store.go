package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// historyColumns is the fixed column layout of the history sheet.
var historyColumns = []string{
	"ID", "Created At", "Image Hash", "Status", "Status Message",
	"Bank", "Account/Convenio", "Amount", "Date", "Time",
	"Operation Number", "RRN", "Receipt Number", "Voucher Number",
	"Approval Code", "Transaction ID", "Payment Reference", "Provider",
}

// Store implements the service.HistoryStore interface on Google Sheets.
type Store struct {
	service *sheetsapi.Service
	logger  *slog.Logger
	config  Config
}

// NewStore creates a Google Sheets history store.
func NewStore(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Store{
		config:  config,
		service: svc,
		logger:  logger,
	}, nil
}

// FetchHistory reads previously appended records from the sheet. Only the
// fields relevant to duplicate checking are populated.
func (s *Store) FetchHistory(ctx context.Context, filter service.RecordFilter) ([]model.ConsignmentRecord, error) {
	readRange := fmt.Sprintf("%s!A2:R", s.config.SheetName)

	var resp *sheetsapi.ValueRange
	err := common.WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = s.service.Spreadsheets.Values.Get(s.config.SpreadsheetID, readRange).Context(ctx).Do()
		return callErr
	}, s.retryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to read history sheet: %w", err)
	}

	records := make([]model.ConsignmentRecord, 0, len(resp.Values))
	for _, row := range resp.Values {
		record := recordFromRow(row)
		if record.ID == "" && record.ImageHash == "" {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(record.Status, filter.Statuses) {
			continue
		}
		records = append(records, record)
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}

	s.logger.Debug("fetched remote history", "records", len(records))
	return records, nil
}

// AppendRecords appends validated records to the sheet in batches.
func (s *Store) AppendRecords(ctx context.Context, records []model.ConsignmentRecord) error {
	if len(records) == 0 {
		return nil
	}

	for start := 0; start < len(records); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(records))

		values := make([][]any, 0, end-start)
		for i := start; i < end; i++ {
			values = append(values, rowFromRecord(&records[i]))
		}

		appendRange := fmt.Sprintf("%s!A:R", s.config.SheetName)
		body := &sheetsapi.ValueRange{Values: values}

		err := common.WithRetry(ctx, func() error {
			_, callErr := s.service.Spreadsheets.Values.
				Append(s.config.SpreadsheetID, appendRange, body).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).Do()
			return callErr
		}, s.retryOptions())
		if err != nil {
			return fmt.Errorf("failed to append records: %w", err)
		}
	}

	s.logger.Info("appended records to remote history", "records", len(records))
	return nil
}

func (s *Store) retryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  s.config.RetryAttempts,
		InitialDelay: s.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func rowFromRecord(r *model.ConsignmentRecord) []any {
	return []any{
		r.ID, r.CreatedAt.Format(time.RFC3339), r.ImageHash, string(r.Status), r.StatusMessage,
		r.Bank, r.AccountOrConvenio, strconv.FormatInt(r.Amount, 10), r.Date, r.Time,
		r.OperationNumber, r.RRN, r.ReceiptNumber, r.VoucherNumber,
		r.ApprovalCode, r.TransactionID, r.PaymentReference, r.UsedProvider,
	}
}

func recordFromRow(row []any) model.ConsignmentRecord {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		s, _ := row[i].(string)
		return s
	}

	var record model.ConsignmentRecord
	record.ID = cell(0)
	if t, err := time.Parse(time.RFC3339, cell(1)); err == nil {
		record.CreatedAt = t
	}
	record.ImageHash = cell(2)
	record.Status = model.RecordStatus(cell(3))
	record.StatusMessage = cell(4)
	record.Bank = cell(5)
	record.AccountOrConvenio = cell(6)
	if amount, err := strconv.ParseInt(cell(7), 10, 64); err == nil {
		record.Amount = amount
	}
	record.Date = cell(8)
	record.Time = cell(9)
	record.OperationNumber = cell(10)
	record.RRN = cell(11)
	record.ReceiptNumber = cell(12)
	record.VoucherNumber = cell(13)
	record.ApprovalCode = cell(14)
	record.TransactionID = cell(15)
	record.PaymentReference = cell(16)
	record.UsedProvider = cell(17)
	return record
}

func statusIn(status model.RecordStatus, statuses []model.RecordStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// createSheetsService builds the API client from either a service account
// file or OAuth2 refresh-token credentials.
func createSheetsService(ctx context.Context, config Config) (*sheetsapi.Service, error) {
	if config.ServiceAccountPath != "" {
		data, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
		}
		return sheetsapi.NewService(ctx, option.WithCredentials(creds))
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{sheetsapi.SpreadsheetsScope},
	}
	token := &oauth2.Token{RefreshToken: config.RefreshToken}
	return sheetsapi.NewService(ctx, option.WithTokenSource(oauthConfig.TokenSource(ctx, token)))
}
