package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/consigna-dev/consigna/internal/cache"
	"github.com/consigna-dev/consigna/internal/consensus"
	"github.com/consigna-dev/consigna/internal/extract"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/rules"
	"github.com/consigna-dev/consigna/internal/service"
	"github.com/consigna-dev/consigna/internal/sheets"
	"github.com/consigna-dev/consigna/internal/storage"
	"github.com/consigna-dev/consigna/internal/validation"
)

// initStorage opens the SQLite database and applies pending migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = fmt.Sprintf("%s/.local/share/consigna/consigna.db", home)
	}
	dbPath = expandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// providerConfig reads one provider's settings from the config tree, e.g.
// providers.openai.api_key.
func providerConfig(name string) extract.Config {
	prefix := "providers." + name + "."
	return extract.Config{
		Provider:    name,
		APIKey:      viper.GetString(prefix + "api_key"),
		Model:       viper.GetString(prefix + "model"),
		MaxRetries:  viper.GetInt(prefix + "max_retries"),
		RetryDelay:  viper.GetDuration(prefix + "retry_delay"),
		RateLimit:   viper.GetInt(prefix + "rate_limit"),
		Temperature: viper.GetFloat64(prefix + "temperature"),
		MaxTokens:   viper.GetInt(prefix + "max_tokens"),
	}
}

// buildOrchestrator wires the providers, correction rules, and result cache
// into a consensus orchestrator. The secondary provider is optional and only
// needed for the dual strategy.
func buildOrchestrator(store service.Storage, logger *slog.Logger) (*consensus.Orchestrator, error) {
	primaryName := viper.GetString("extraction.primary")
	if primaryName == "" {
		primaryName = "openai"
	}

	primary, err := extract.NewProvider(providerConfig(primaryName))
	if err != nil {
		return nil, fmt.Errorf("failed to create primary provider: %w", err)
	}

	var secondary extract.Provider
	if secondaryName := viper.GetString("extraction.secondary"); secondaryName != "" {
		secondary, err = extract.NewProvider(providerConfig(secondaryName))
		if err != nil {
			return nil, fmt.Errorf("failed to create secondary provider: %w", err)
		}
	}

	pipeline := rules.NewPipeline(rulesConfig())

	var cacheStore *cache.Store
	if !viper.GetBool("cache.disabled") {
		cacheStore = cache.New(store, viper.GetDuration("cache.ttl"), logger)
	}

	return consensus.New(primary, secondary, pipeline, cacheStore, logger), nil
}

// rulesConfig loads the operator-curated partner table from the config file.
func rulesConfig() rules.Config {
	var cfg rules.Config
	if err := viper.UnmarshalKey("rules.partners", &cfg.Partners); err != nil {
		slog.Warn("failed to parse rules.partners, continuing without partner rules", "error", err)
	}
	return cfg
}

// buildHistoryStore creates the Google Sheets history store when configured,
// or returns nil when the spreadsheet integration is off.
func buildHistoryStore(ctx context.Context, logger *slog.Logger) (service.HistoryStore, error) {
	spreadsheetID := viper.GetString("sheets.spreadsheet_id")
	if spreadsheetID == "" {
		return nil, nil
	}

	cfg := sheets.DefaultConfig()
	cfg.SpreadsheetID = spreadsheetID
	cfg.ClientID = viper.GetString("sheets.client_id")
	cfg.ClientSecret = viper.GetString("sheets.client_secret")
	cfg.RefreshToken = viper.GetString("sheets.refresh_token")
	cfg.ServiceAccountPath = expandPath(viper.GetString("sheets.service_account_path"))
	if name := viper.GetString("sheets.sheet_name"); name != "" {
		cfg.SheetName = name
	}
	if batch := viper.GetInt("sheets.batch_size"); batch > 0 {
		cfg.BatchSize = batch
	}

	store, err := sheets.NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	return store, nil
}

// validationConfig reads the validation policy from the config file.
func validationConfig() validation.Config {
	cfg := validation.DefaultConfig()
	if v := viper.GetInt("validation.min_quality_score"); v > 0 {
		cfg.MinQualityScore = v
	}
	if v := viper.GetInt64("validation.amount_tolerance"); v > 0 {
		cfg.AmountTolerance = v
	}
	cfg.CommonReferences = viper.GetStringSlice("validation.common_references")
	return cfg
}

// loadExamples reads prior human-corrected extractions used to bias the
// model prompt. Missing file means no examples, not an error.
func loadExamples() ([]model.PromptExample, error) {
	path := expandPath(viper.GetString("extraction.examples_path"))
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read examples file: %w", err)
	}

	var examples []model.PromptExample
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse examples file %s: %w", path, err)
	}
	return examples, nil
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return &t, nil
}
