package redis_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

// ISessionRepository 訪客 session 狀態的存取介面
type ISessionRepository interface {
	// Load 讀取 session 狀態，不存在時回傳空狀態
	Load(ctx context.Context, sessionID string) (*model.SessionState, error)

	// Save 整份覆寫 session 狀態並刷新 TTL
	Save(ctx context.Context, sess *model.SessionState) error

	// Delete 刪除 session 狀態
	Delete(ctx context.Context, sessionID string) error
}

/*	redis 結構:
	session:<id>:basket hash  商品鍵值 -> item JSON
	session:<id>:meta   hash  pending_order, basket_merged*/

type SessionRepo struct {
	sessionCache *redis.Client
	ttl          time.Duration
}

func NewSessionRepo(sessionCache *redis.Client, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &SessionRepo{sessionCache: sessionCache, ttl: ttl}
}

func generateSessionBasketKey(sessionID string) string {
	return fmt.Sprintf("session:%s:basket", sessionID)
}

func generateSessionMetaKey(sessionID string) string {
	return fmt.Sprintf("session:%s:meta", sessionID)
}

// Load 讀取 session 狀態
// 兩個 hash 都不存在時回傳空狀態，不算錯誤
func (r *SessionRepo) Load(ctx context.Context, sessionID string) (*model.SessionState, error) {
	basketKey := generateSessionBasketKey(sessionID)
	metaKey := generateSessionMetaKey(sessionID)

	items, err := r.sessionCache.HGetAll(ctx, basketKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session basket: %w", err)
	}

	meta, err := r.sessionCache.HGetAll(ctx, metaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session meta: %w", err)
	}

	sess := model.NewSessionState(sessionID)
	for productKey, raw := range items {
		var item model.SessionItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("invalid session item for product %s: %w", productKey, err)
		}
		// 數量 0 視同不存在
		if item.Quantity > 0 {
			sess.Basket[productKey] = item
		}
	}

	sess.PendingOrder = meta["pending_order"]
	sess.BasketMerged = meta["basket_merged"] == "1"
	return sess, nil
}

// Save 整份覆寫 session 狀態
// 使用 Lua 腳本確保兩個 hash 的覆寫是原子的
func (r *SessionRepo) Save(ctx context.Context, sess *model.SessionState) error {
	basketKey := generateSessionBasketKey(sess.SessionID)
	metaKey := generateSessionMetaKey(sess.SessionID)

	luaScript := `
		redis.call('DEL', KEYS[1])
		for i = 4, #ARGV, 2 do
			redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
		end
		if redis.call('EXISTS', KEYS[1]) == 1 then
			redis.call('EXPIRE', KEYS[1], ARGV[1])
		end
		redis.call('DEL', KEYS[2])
		redis.call('HSET', KEYS[2], 'pending_order', ARGV[2], 'basket_merged', ARGV[3])
		redis.call('EXPIRE', KEYS[2], ARGV[1])
		return 1
	`

	merged := "0"
	if sess.BasketMerged {
		merged = "1"
	}
	args := []interface{}{
		strconv.Itoa(int(r.ttl.Seconds())), // ARGV[1]: ttl 秒數
		sess.PendingOrder,                  // ARGV[2]
		merged,                             // ARGV[3]
	}
	for productKey, item := range sess.Basket {
		if item.Quantity <= 0 {
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal session item %s: %w", productKey, err)
		}
		args = append(args, productKey, string(raw))
	}

	_, err := r.sessionCache.Eval(ctx, luaScript, []string{basketKey, metaKey}, args...).Result()
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.SessionID, err)
	}
	return nil
}

// Delete 刪除 session 狀態
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	basketKey := generateSessionBasketKey(sessionID)
	metaKey := generateSessionMetaKey(sessionID)

	err := r.sessionCache.Del(ctx, basketKey, metaKey).Err()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

var _ ISessionRepository = (*SessionRepo)(nil)
