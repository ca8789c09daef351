package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewMongoStoreRequiresURI(t *testing.T) {
	t.Parallel()

	_, err := NewMongoStore(context.Background(), MongoStoreConfig{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMongoDocRoundTrip(t *testing.T) {
	t.Parallel()

	rec := record("e1", "completed", "consensus")
	rec.ConfigJSON = `{"k":"v"}`
	rec.StartedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	back := toMongoDoc(rec).toRecord()
	assert.Equal(t, rec, back)
}

// integration coverage gated on a live MongoDB
func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("TEAMFLOW_MONGO_URI")
	if uri == "" {
		t.Skip("TEAMFLOW_MONGO_URI not set")
	}

	ctx := context.Background()
	s, err := NewMongoStore(ctx, MongoStoreConfig{
		URI:      uri,
		Database: "teamflow_test",
		Timeout:  5 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveExecution(ctx, record("it-e1", "running", "parallel")))

	got, err := s.GetExecution(ctx, "it-e1")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)

	require.NoError(t, s.DeleteExecution(ctx, "it-e1"))
}
