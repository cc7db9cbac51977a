// Package engine runs end-to-end processing of receipt image batches:
// consensus extraction, validation against the combined history corpus, and
// persistence of the resulting consignment records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/consigna-dev/consigna/internal/consensus"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
	"github.com/consigna-dev/consigna/internal/validation"
)

// Image is one uploaded receipt awaiting processing.
type Image struct {
	Ref      string
	MimeType string
	Data     []byte
}

// Config holds configuration options for the processing engine.
type Config struct {
	Strategy     consensus.Strategy
	Examples     []model.PromptExample
	Validation   validation.Config
	AppendRemote bool
	ShowProgress bool
}

// Engine orchestrates the processing of uploaded receipt batches.
type Engine struct {
	storage      service.Storage
	history      service.HistoryStore
	orchestrator *consensus.Orchestrator
	logger       *slog.Logger
	cfg          Config
}

// New creates a processing engine. The history store may be nil, in which
// case only local records form the duplicate-check corpus.
func New(storage service.Storage, history service.HistoryStore, orchestrator *consensus.Orchestrator, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage:      storage,
		history:      history,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
	}
}

// ProcessBatch processes images strictly in submission order, so that
// record K sees records 1..K-1 of the same batch as prior history and
// duplicate outcomes stay reproducible. Extraction calls inside a single
// image still run concurrently.
func (e *Engine) ProcessBatch(ctx context.Context, images []Image) ([]model.ConsignmentRecord, error) {
	whitelist, err := e.storage.GetWhitelist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whitelist: %w", err)
	}
	validator := validation.New(e.cfg.Validation, whitelist, e.logger)

	corpus, err := e.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("processing batch",
		"images", len(images),
		"strategy", e.cfg.Strategy,
		"history_records", len(corpus))

	var bar *progressbar.ProgressBar
	if e.cfg.ShowProgress {
		bar = progressbar.Default(int64(len(images)), "analyzing receipts")
	}

	records := make([]model.ConsignmentRecord, 0, len(images))
	var failures []error

	for _, img := range images {
		record, err := e.processOne(ctx, img, validator, corpus)
		if err != nil {
			e.logger.Warn("image failed, skipping", "image", img.Ref, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", img.Ref, err))
			if bar != nil {
				_ = bar.Add(1)
			}
			continue
		}

		records = append(records, record)
		if record.Status == model.StatusValid {
			corpus = append(corpus, record)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if len(records) > 0 {
		if err := e.storage.SaveRecords(ctx, records); err != nil {
			return records, fmt.Errorf("failed to persist records: %w", err)
		}
	}

	if e.cfg.AppendRemote && e.history != nil {
		accepted := make([]model.ConsignmentRecord, 0, len(records))
		for _, r := range records {
			if r.Status == model.StatusValid {
				accepted = append(accepted, r)
			}
		}
		if len(accepted) > 0 {
			if err := e.history.AppendRecords(ctx, accepted); err != nil {
				failures = append(failures, fmt.Errorf("remote append: %w", err))
			}
		}
	}

	return records, errors.Join(failures...)
}

func (e *Engine) processOne(ctx context.Context, img Image, validator *validation.Engine, corpus []model.ConsignmentRecord) (model.ConsignmentRecord, error) {
	hash := model.HashImage(img.Data)

	result, err := e.orchestrator.Extract(ctx, e.cfg.Strategy, img.Data, img.MimeType, e.cfg.Examples)
	if err != nil {
		return model.ConsignmentRecord{}, err
	}

	outcome := validator.Validate(result, corpus)

	record := model.ConsignmentRecord{
		ExtractionResult: result,
		ID:               uuid.NewString(),
		ImageRef:         img.Ref,
		ImageHash:        hash,
		CreatedAt:        time.Now(),
		Status:           outcome.Status,
		StatusMessage:    outcome.Message,
	}

	e.logger.Info("receipt processed",
		"image", img.Ref,
		"status", record.Status,
		"amount", record.Amount,
		"confidence", record.Confidence,
		"from_cache", record.FromCache)

	return record, nil
}

// loadCorpus assembles the duplicate-check corpus from locally accepted
// records plus the remote history, when configured.
func (e *Engine) loadCorpus(ctx context.Context) ([]model.ConsignmentRecord, error) {
	corpus, err := e.storage.GetAcceptedRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load local history: %w", err)
	}

	if e.history != nil {
		remote, err := e.history.FetchHistory(ctx, service.RecordFilter{
			Statuses: []model.RecordStatus{model.StatusValid},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load remote history: %w", err)
		}

		seen := make(map[string]bool, len(corpus))
		for _, r := range corpus {
			seen[r.ID] = true
		}
		for _, r := range remote {
			if !seen[r.ID] {
				corpus = append(corpus, r)
			}
		}
	}

	return corpus, nil
}
