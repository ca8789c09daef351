package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoStoreConfig configures the MongoDB execution store.
type MongoStoreConfig struct {
	URI        string        `yaml:"uri" json:"uri"`
	Database   string        `yaml:"database" json:"database"`
	Collection string        `yaml:"collection" json:"collection"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultMongoStoreConfig returns local defaults.
func DefaultMongoStoreConfig() MongoStoreConfig {
	return MongoStoreConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "teamflow",
		Collection: "executions",
		Timeout:    10 * time.Second,
	}
}

// mongoExecutionDoc mirrors ExecutionRecord with _id as the execution ID.
type mongoExecutionDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Mode          string    `bson:"mode"`
	Status        string    `bson:"status"`
	ConfigJSON    string    `bson:"config_json"`
	MetricsJSON   string    `bson:"metrics_json"`
	ResultsJSON   string    `bson:"results_json"`
	ConflictsJSON string    `bson:"conflicts_json"`
	Error         string    `bson:"error,omitempty"`
	StartedAt     time.Time `bson:"started_at"`
	FinishedAt    time.Time `bson:"finished_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toMongoDoc(r *ExecutionRecord) *mongoExecutionDoc {
	return &mongoExecutionDoc{
		ID:            r.ID,
		Name:          r.Name,
		Mode:          r.Mode,
		Status:        r.Status,
		ConfigJSON:    r.ConfigJSON,
		MetricsJSON:   r.MetricsJSON,
		ResultsJSON:   r.ResultsJSON,
		ConflictsJSON: r.ConflictsJSON,
		Error:         r.Error,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (d *mongoExecutionDoc) toRecord() *ExecutionRecord {
	return &ExecutionRecord{
		ID:            d.ID,
		Name:          d.Name,
		Mode:          d.Mode,
		Status:        d.Status,
		ConfigJSON:    d.ConfigJSON,
		MetricsJSON:   d.MetricsJSON,
		ResultsJSON:   d.ResultsJSON,
		ConflictsJSON: d.ConflictsJSON,
		Error:         d.Error,
		StartedAt:     d.StartedAt,
		FinishedAt:    d.FinishedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoStore persists execution records in a MongoDB collection, upserting
// by _id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoStore connects and verifies the MongoDB backend.
func NewMongoStore(ctx context.Context, config MongoStoreConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.URI == "" {
		return nil, fmt.Errorf("%w: mongo URI is required", ErrInvalidInput)
	}
	if config.Database == "" {
		config.Database = DefaultMongoStoreConfig().Database
	}
	if config.Collection == "" {
		config.Collection = DefaultMongoStoreConfig().Collection
	}

	client, err := mongo.Connect(options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx := ctx
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		logger:     logger.With(zap.String("component", "execution_store_mongo")),
	}, nil
}

// SaveExecution upserts a record by _id.
func (s *MongoStore) SaveExecution(ctx context.Context, record *ExecutionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	cp := *record
	cp.UpdatedAt = time.Now()
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": record.ID},
		toMongoDoc(&cp),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo save execution: %w", err)
	}
	return nil
}

// GetExecution loads one record by _id.
func (s *MongoStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	var doc mongoExecutionDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get execution: %w", err)
	}
	return doc.toRecord(), nil
}

// ListExecutions queries with filters, most recently updated first.
func (s *MongoStore) ListExecutions(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Mode != "" {
		query["mode"] = filter.Mode
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts = opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list executions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*ExecutionRecord
	for cursor.Next(ctx) {
		var doc mongoExecutionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode execution: %w", err)
		}
		out = append(out, doc.toRecord())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return out, nil
}

// DeleteExecution removes one record.
func (s *MongoStore) DeleteExecution(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete execution: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Cleanup removes records last updated before the cutoff.
func (s *MongoStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, fmt.Errorf("mongo cleanup: %w", err)
	}
	return result.DeletedCount, nil
}

// Stats summarizes the collection contents.
func (s *MongoStore) Stats(ctx context.Context) (*StoreStats, error) {
	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo stats: %w", err)
	}

	cursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo stats by status: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &StoreStats{
		TotalRecords:   total,
		RecordsByState: make(map[string]int64),
	}
	for cursor.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongo decode stats: %w", err)
		}
		stats.RecordsByState[row.ID] = row.Count
	}
	return stats, cursor.Err()
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
