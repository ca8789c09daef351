package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryPolicyValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, RecoveryPolicy{}.Validate())
	require.NoError(t, DefaultRecoveryPolicy().Validate())
	require.NoError(t, RecoveryPolicy{OnFailure: RecoveryFallbackAgent, FallbackAgent: "backup"}.Validate())

	assert.Error(t, RecoveryPolicy{OnFailure: RecoveryFallbackAgent}.Validate())
	assert.Error(t, RecoveryPolicy{OnFailure: "pray"}.Validate())
	assert.Error(t, RecoveryPolicy{OnFailure: RecoveryRetry, MaxRetries: -1}.Validate())
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	p := RecoveryPolicy{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, p.CalculateBackoff(0))
	assert.Equal(t, 200*time.Millisecond, p.CalculateBackoff(1))
	assert.Equal(t, 400*time.Millisecond, p.CalculateBackoff(2))
	// 封顶
	assert.Equal(t, time.Second, p.CalculateBackoff(10))
	// 负数按首轮处理
	assert.Equal(t, 100*time.Millisecond, p.CalculateBackoff(-1))

	// 零值字段回退到默认
	var zero RecoveryPolicy
	assert.Equal(t, 500*time.Millisecond, zero.CalculateBackoff(0))
	assert.Equal(t, time.Second, zero.CalculateBackoff(1))
	assert.Equal(t, 30*time.Second, zero.CalculateBackoff(20))
}
