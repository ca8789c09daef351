package engine

import (
	"fmt"
	"math"
	"time"
)

// RecoveryAction 任务失败后的恢复动作
type RecoveryAction string

const (
	// RecoveryRetry 立即重试同一任务
	RecoveryRetry RecoveryAction = "retry"
	// RecoveryRetryWithBackoff 指数退避后重试
	RecoveryRetryWithBackoff RecoveryAction = "retry_with_backoff"
	// RecoveryFallbackAgent 改派给后备智能体重试一次
	RecoveryFallbackAgent RecoveryAction = "fallback_agent"
	// RecoveryFail 直接接受失败
	RecoveryFail RecoveryAction = "fail"
)

// RecoveryPolicy 失败恢复策略
type RecoveryPolicy struct {
	OnFailure         RecoveryAction `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	MaxRetries        int            `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	InitialBackoff    time.Duration  `json:"initial_backoff,omitempty" yaml:"initial_backoff,omitempty"`
	MaxBackoff        time.Duration  `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	BackoffMultiplier float64        `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	FallbackAgent     string         `json:"fallback_agent,omitempty" yaml:"fallback_agent,omitempty"`
}

// DefaultRecoveryPolicy 默认直接失败
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		OnFailure:         RecoveryFail,
		MaxRetries:        2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate 校验策略
func (p RecoveryPolicy) Validate() error {
	switch p.OnFailure {
	case "", RecoveryRetry, RecoveryRetryWithBackoff, RecoveryFail:
	case RecoveryFallbackAgent:
		if p.FallbackAgent == "" {
			return fmt.Errorf("fallback_agent action requires a fallback agent")
		}
	default:
		return fmt.Errorf("unknown recovery action: %s", p.OnFailure)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if p.BackoffMultiplier < 0 {
		return fmt.Errorf("backoff_multiplier must be >= 0")
	}
	return nil
}

// CalculateBackoff 返回第 attempt 次重试前的退避时长（attempt 从 0 开始），
// 指数增长并封顶于 MaxBackoff
func (p RecoveryPolicy) CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := float64(initial) * math.Pow(multiplier, float64(attempt))
	if backoff > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(backoff)
}
