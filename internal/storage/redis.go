package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/talecraft/turnengine/pkg/action"
	"github.com/talecraft/turnengine/pkg/assemble"
	"github.com/talecraft/turnengine/pkg/budget"
	"github.com/talecraft/turnengine/pkg/state"
)

// Key prefixes for the Redis-backed data families.
const (
	keyGameState = "gamestate:"
	keyBudget    = "budget:"
	keyAudit     = "audit:"
	keyAttach    = "attach:"
	keyParams    = "params:"
	keyTurnKey   = "turnkey:"
)

const (
	gameStateTTL = time.Hour
	auditTTL     = 24 * time.Hour
	turnKeyTTL   = 24 * time.Hour
)

// RedisStorage implements the Storage interface using Redis for mutable
// story data and the filesystem for authored content packs.
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string

	slotDefs *slotDefTable
}

// Ensure RedisStorage satisfies the storage surface and the narrower
// views the pipeline consumes.
var (
	_ Storage               = (*RedisStorage)(nil)
	_ assemble.Source       = (*RedisStorage)(nil)
	_ action.AttachmentView = (*RedisStorage)(nil)
)

// NewRedisStorage creates a new Redis storage instance. redisURL may be
// a redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) *RedisStorage {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	rdb := redis.NewClient(opts)

	if dataDir == "" {
		dataDir = "./data"
	}

	return &RedisStorage{
		client:   rdb,
		logger:   logger,
		dataDir:  dataDir,
		slotDefs: &slotDefTable{},
	}
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// GameState operations (Redis-backed)

func (r *RedisStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	gs.UpdatedAt = time.Now()

	data, err := json.Marshal(gs)
	if err != nil {
		r.logger.Error("Failed to marshal gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}

	key := keyGameState + id.String()
	if err := r.client.Set(ctx, key, string(data), gameStateTTL).Err(); err != nil {
		r.logger.Error("Failed to save gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to save gamestate: %w", err)
	}

	return nil
}

func (r *RedisStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	key := keyGameState + id.String()
	cmd := r.client.Get(ctx, key)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			r.logger.Warn("Gamestate not found", "uuid", id)
			return nil, nil // Return nil for not found
		}
		r.logger.Error("Failed to load gamestate", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to load gamestate: %w", err)
	}

	data := cmd.Val()
	if data == "" {
		r.logger.Warn("Gamestate not found", "uuid", id)
		return nil, nil
	}

	var gs state.GameState
	if err := json.Unmarshal([]byte(data), &gs); err != nil {
		r.logger.Error("Failed to unmarshal gamestate", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal gamestate: %w", err)
	}

	return &gs, nil
}

func (r *RedisStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	key := keyGameState + id.String()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Failed to delete gamestate", "uuid", id, "error", err)
		return fmt.Errorf("failed to delete gamestate: %w", err)
	}
	return nil
}

// Module params (Redis-backed overrides merged onto pack defaults in
// content.go)

func (r *RedisStorage) SetModuleParams(ctx context.Context, storyID, moduleID string, params map[string]interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal module params: %w", err)
	}

	key := keyParams + storyID + ":" + moduleID
	if err := r.client.Set(ctx, key, string(data), 0).Err(); err != nil {
		return fmt.Errorf("failed to save module params: %w", err)
	}
	return nil
}

// loadParamOverrides returns the stored override map, or nil when none.
func (r *RedisStorage) loadParamOverrides(ctx context.Context, storyID, moduleID string) (map[string]interface{}, error) {
	key := keyParams + storyID + ":" + moduleID
	cmd := r.client.Get(ctx, key)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load module params: %w", err)
	}

	var overrides map[string]interface{}
	if err := json.Unmarshal([]byte(cmd.Val()), &overrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal module params: %w", err)
	}
	return overrides, nil
}

// Module attachment (Redis sets, one per story)

func (r *RedisStorage) AttachModule(ctx context.Context, storyID, moduleID string) error {
	if err := r.client.SAdd(ctx, keyAttach+storyID, moduleID).Err(); err != nil {
		return fmt.Errorf("failed to attach module: %w", err)
	}
	return nil
}

func (r *RedisStorage) DetachModule(ctx context.Context, storyID, moduleID string) error {
	if err := r.client.SRem(ctx, keyAttach+storyID, moduleID).Err(); err != nil {
		return fmt.Errorf("failed to detach module: %w", err)
	}
	return nil
}

func (r *RedisStorage) ModuleAttached(ctx context.Context, storyID, moduleID string) (bool, error) {
	cmd := r.client.SIsMember(ctx, keyAttach+storyID, moduleID)
	if err := cmd.Err(); err != nil {
		return false, fmt.Errorf("failed to check module attachment: %w", err)
	}
	return cmd.Val(), nil
}

func (r *RedisStorage) ListAttachedModules(ctx context.Context, storyID string) ([]string, error) {
	cmd := r.client.SMembers(ctx, keyAttach+storyID)
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attached modules: %w", err)
	}
	return cmd.Val(), nil
}

// Turn bookkeeping

func (r *RedisStorage) SaveBudgetReport(ctx context.Context, turnID string, rep *budget.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal budget report: %w", err)
	}

	if err := r.client.Set(ctx, keyBudget+turnID, string(data), auditTTL).Err(); err != nil {
		return fmt.Errorf("failed to save budget report: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadBudgetReport(ctx context.Context, turnID string) (*budget.Report, error) {
	cmd := r.client.Get(ctx, keyBudget+turnID)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load budget report: %w", err)
	}

	var rep budget.Report
	if err := json.Unmarshal([]byte(cmd.Val()), &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal budget report: %w", err)
	}
	return &rep, nil
}

func (r *RedisStorage) SaveTurnAudit(ctx context.Context, audit *TurnAudit) error {
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	data, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("failed to marshal turn audit: %w", err)
	}

	if err := r.client.Set(ctx, keyAudit+audit.TurnID, string(data), auditTTL).Err(); err != nil {
		return fmt.Errorf("failed to save turn audit: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadTurnAudit(ctx context.Context, turnID string) (*TurnAudit, error) {
	cmd := r.client.Get(ctx, keyAudit+turnID)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load turn audit: %w", err)
	}

	var audit TurnAudit
	if err := json.Unmarshal([]byte(cmd.Val()), &audit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turn audit: %w", err)
	}
	return &audit, nil
}

// ClaimTurnKey reserves an idempotency key with SETNX semantics. A lost
// claim returns the turn ID that already holds the key.
func (r *RedisStorage) ClaimTurnKey(ctx context.Context, key, turnID string) (string, bool, error) {
	redisKey := keyTurnKey + key

	ok, err := r.client.SetNX(ctx, redisKey, turnID, turnKeyTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to claim turn key: %w", err)
	}
	if ok {
		return turnID, true, nil
	}

	holder, err := r.client.Get(ctx, redisKey).Result()
	if err != nil {
		if err == redis.Nil {
			// Holder expired between SETNX and GET; treat as lost with
			// no known holder rather than looping.
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read turn key holder: %w", err)
	}
	return holder, false, nil
}
