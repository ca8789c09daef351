package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// TableName maps ExecutionRecord onto the executions table.
func (ExecutionRecord) TableName() string { return "executions" }

// GormStoreConfig configures the SQL execution store.
type GormStoreConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver-specific connection string (file path or
	// :memory: for sqlite).
	DSN string `yaml:"dsn" json:"dsn"`
	// AutoMigrate creates the schema on start; production deployments
	// run the migrate subcommand instead.
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate"`

	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultGormStoreConfig returns an embedded sqlite setup.
func DefaultGormStoreConfig() GormStoreConfig {
	return GormStoreConfig{
		Driver:          "sqlite",
		DSN:             "teamflow.db",
		AutoMigrate:     true,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// GormStore persists execution records through GORM (pure-Go sqlite or
// postgres).
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore opens the database and optionally migrates the schema.
func NewGormStore(config GormStoreConfig, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(config.DSN)
	case "postgres":
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store := &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "execution_store_gorm")),
	}
	if config.AutoMigrate {
		if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return store, nil
}

// NewGormStoreFromDB wraps an existing gorm handle (tests).
func NewGormStoreFromDB(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "execution_store_gorm")),
	}
}

// SaveExecution upserts by primary key.
func (s *GormStore) SaveExecution(ctx context.Context, record *ExecutionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	record.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// GetExecution loads one record by ID.
func (s *GormStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	var record ExecutionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return &record, nil
}

// ListExecutions queries with filters, most recently updated first.
func (s *GormStore) ListExecutions(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	query := s.db.WithContext(ctx).Model(&ExecutionRecord{}).Order("updated_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Mode != "" {
		query = query.Where("mode = ?", filter.Mode)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []*ExecutionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return records, nil
}

// DeleteExecution removes one record.
func (s *GormStore) DeleteExecution(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&ExecutionRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete execution: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Cleanup removes records last updated before the cutoff.
func (s *GormStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&ExecutionRecord{}, "updated_at < ?", olderThan)
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup executions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats summarizes the table contents.
func (s *GormStore) Stats(ctx context.Context) (*StoreStats, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&ExecutionRecord{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := s.db.WithContext(ctx).Model(&ExecutionRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}

	stats := &StoreStats{
		TotalRecords:   total,
		RecordsByState: make(map[string]int64, len(rows)),
	}
	for _, row := range rows {
		stats.RecordsByState[row.Status] = row.Count
	}
	return stats, nil
}

// Ping verifies the underlying connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
