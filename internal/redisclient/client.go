package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Session is the per-login state kept server side. The CSRF token is
// minted with the session and must accompany every mutating request.
type Session struct {
	UserID    int64
	CSRFToken string
}

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Client wraps redis for session storage and the cart count cache.
type Client struct {
	rdb        *redis.Client
	sessionTTL time.Duration
}

// NewClient connects to redis and verifies the connection.
func NewClient(addr, password string, db int, sessionTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, sessionTTL: sessionTTL}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// CreateSession stores a new session for the user and returns its id.
// Every session carries a fresh CSRF token.
func (c *Client) CreateSession(ctx context.Context, userID int64) (string, *Session, error) {
	id := uuid.New().String()
	session := &Session{
		UserID:    userID,
		CSRFToken: uuid.New().String(),
	}

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, sessionKey(id), "user_id", userID, "csrf_token", session.CSRFToken)
	pipe.Expire(ctx, sessionKey(id), c.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", nil, fmt.Errorf("failed to store session: %w", err)
	}
	return id, session, nil
}

// GetSession loads a session and refreshes its TTL.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	values, err := c.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}

	userID, err := strconv.ParseInt(values["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}

	_ = c.rdb.Expire(ctx, sessionKey(id), c.sessionTTL).Err()

	return &Session{
		UserID:    userID,
		CSRFToken: values["csrf_token"],
	}, nil
}

// DeleteSession removes a session (logout).
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, sessionKey(id)).Err()
}

func cartCountKey(userID int64) string {
	return fmt.Sprintf("cartcount:%d", userID)
}

// GetCartCount returns the cached cart count and whether it was
// present.
func (c *Client) GetCartCount(ctx context.Context, userID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, cartCountKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cart count for user %d: %w", userID, err)
	}
	return count, true, nil
}

// SetCartCount caches the cart count with a short TTL.
func (c *Client) SetCartCount(ctx context.Context, userID int64, count int) error {
	return c.rdb.Set(ctx, cartCountKey(userID), count, 5*time.Minute).Err()
}

// InvalidateCartCount drops the cached count after a cart mutation.
func (c *Client) InvalidateCartCount(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cartCountKey(userID)).Err()
}
