package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExceeded is returned when a scope has spent its token budget.
var ErrBudgetExceeded = errors.New("AI token budget exceeded")

// BudgetChecker checks and records token usage per scope. Scopes are
// learning-path IDs.
type BudgetChecker interface {
	// Check reports whether the scope has budget remaining.
	Check(ctx context.Context, scope string) (bool, error)
	// Record adds token usage to the scope.
	Record(ctx context.Context, scope string, tokens int) error
	// Usage returns used tokens and the limit (0 means unlimited).
	Usage(ctx context.Context, scope string) (used int64, limit int64, err error)
}

// InMemoryBudget tracks usage in process memory.
type InMemoryBudget struct {
	mu     sync.RWMutex
	limit  int64
	limits map[string]int64
	usage  map[string]int64
}

// NewInMemoryBudget creates a tracker where every scope gets limit tokens.
// A zero limit is unlimited.
func NewInMemoryBudget(limit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit:  limit,
		limits: make(map[string]int64),
		usage:  make(map[string]int64),
	}
}

// SetLimit overrides the limit of one scope.
func (b *InMemoryBudget) SetLimit(scope string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[scope] = tokens
}

func (b *InMemoryBudget) Check(_ context.Context, scope string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limitLocked(scope)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[scope] < limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, scope string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[scope] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, scope string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[scope], b.limitLocked(scope), nil
}

func (b *InMemoryBudget) limitLocked(scope string) int64 {
	if l, ok := b.limits[scope]; ok {
		return l
	}
	return b.limit
}

// RedisBudget keeps usage counters in Redis so several server processes
// share one budget.
type RedisBudget struct {
	client *redis.Client
	limit  int64
}

// NewRedisBudget creates a Redis-backed tracker with one limit for every
// scope. A zero limit is unlimited.
func NewRedisBudget(client *redis.Client, limit int64) *RedisBudget {
	return &RedisBudget{client: client, limit: limit}
}

func (b *RedisBudget) Check(ctx context.Context, scope string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, err := b.used(ctx, scope)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, scope string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	if err := b.client.IncrBy(ctx, budgetKey(scope), int64(tokens)).Err(); err != nil {
		return fmt.Errorf("record token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, scope string) (int64, int64, error) {
	used, err := b.used(ctx, scope)
	if err != nil {
		return 0, 0, err
	}
	return used, b.limit, nil
}

func (b *RedisBudget) used(ctx context.Context, scope string) (int64, error) {
	used, err := b.client.Get(ctx, budgetKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read token usage: %w", err)
	}
	return used, nil
}

func budgetKey(scope string) string {
	return "learnpath:ai_tokens:" + scope
}
