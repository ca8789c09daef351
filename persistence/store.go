// Package persistence provides pluggable execution snapshot storage.
// The engine treats it as a sink: storage failures degrade to logs and
// never fail an execution.
package persistence

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when an execution record does not exist.
	ErrNotFound = errors.New("execution record not found")
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("execution store is closed")
	// ErrInvalidInput covers empty IDs and malformed records.
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType identifies a persistence backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeGorm   StoreType = "gorm"
	StoreTypeMongo  StoreType = "mongo"
)

// ExecutionRecord is the serialized snapshot of one execution. The engine
// writes it on every state change; JSON columns keep the schema stable as
// the in-memory shapes evolve.
type ExecutionRecord struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	Name          string    `json:"name" gorm:"size:255;index"`
	Mode          string    `json:"mode" gorm:"size:32;index"`
	Status        string    `json:"status" gorm:"size:32;index"`
	ConfigJSON    string    `json:"config_json" gorm:"type:text"`
	MetricsJSON   string    `json:"metrics_json" gorm:"type:text"`
	ResultsJSON   string    `json:"results_json" gorm:"type:text"`
	ConflictsJSON string    `json:"conflicts_json" gorm:"type:text"`
	Error         string    `json:"error,omitempty" gorm:"type:text"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"index"`
}

// ListFilter narrows ListExecutions.
type ListFilter struct {
	Status string `json:"status,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// StoreStats summarizes store contents.
type StoreStats struct {
	TotalRecords   int64            `json:"total_records"`
	RecordsByState map[string]int64 `json:"records_by_state,omitempty"`
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, record *ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error)
	DeleteExecution(ctx context.Context, id string) error
	// Cleanup removes records whose UpdatedAt is older than the cutoff and
	// returns the number removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context) (*StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// RetryConfig controls store operation retries.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff returns the exponential backoff for an attempt
// (0-based), capped at MaxBackoff.
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if backoff > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

func validateRecord(record *ExecutionRecord) error {
	if record == nil {
		return errors.Join(ErrInvalidInput, errors.New("nil record"))
	}
	if record.ID == "" {
		return errors.Join(ErrInvalidInput, errors.New("empty execution id"))
	}
	return nil
}
