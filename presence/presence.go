// Package presence implements PresenceCore: ephemeral online/typing
// state keyed by user, backed by Redis TTLs so liveness never needs an
// explicit cleanup pass — a dropped connection simply expires.
package presence

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	onlineTTL = 300 * time.Second
	typingTTL = 10 * time.Second
)

// KV is the subset of redisclient.Client PresenceCore depends on, kept
// narrow so it can be faked in tests without a live Redis.
type KV interface {
	SetManyWithExpiry(ctx context.Context, kv map[string]string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	MGet(ctx context.Context, keys []string) ([]string, []bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

type Core struct {
	kv KV
}

func NewCore(kv KV) *Core { return &Core{kv: kv} }

func onlineKey(userID string) string  { return "presence:online:" + userID }
func socketKey(socketID string) string { return "presence:socket:" + socketID }
func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("presence:typing:%s:%s", conversationID, userID)
}
func typingPattern(conversationID string) string { return "presence:typing:" + conversationID + ":*" }

// SetOnline records user→socket and socket→user together so a single
// atomic pipeline maintains both directions of the mapping.
func (c *Core) SetOnline(ctx context.Context, userID, socketID string) error {
	return c.kv.SetManyWithExpiry(ctx, map[string]string{
		onlineKey(userID):   socketID,
		socketKey(socketID): userID,
	}, onlineTTL)
}

func (c *Core) SetOffline(ctx context.Context, userID string) error {
	if err := c.kv.Del(ctx, onlineKey(userID)); err != nil {
		return err
	}
	return c.clearAllTyping(ctx, userID)
}

// Refresh extends the TTL on a connection's online/socket pair. Nothing
// in this module calls it: the realtime bus sends no heartbeat, so the
// pair expires after its TTL unless SetOnline is called again.
func (c *Core) Refresh(ctx context.Context, userID, socketID string) error {
	if err := c.kv.Expire(ctx, onlineKey(userID), onlineTTL); err != nil {
		return err
	}
	return c.kv.Expire(ctx, socketKey(socketID), onlineTTL)
}

func (c *Core) GetOnlineStatuses(ctx context.Context, userIDs []string) (map[string]bool, error) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = onlineKey(id)
	}
	_, found, err := c.kv.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(userIDs))
	for i, id := range userIDs {
		out[id] = found[i]
	}
	return out, nil
}

func (c *Core) SetTyping(ctx context.Context, conversationID, userID string) error {
	return c.kv.SetManyWithExpiry(ctx, map[string]string{
		typingKey(conversationID, userID): "1",
	}, typingTTL)
}

func (c *Core) ClearTyping(ctx context.Context, conversationID, userID string) error {
	return c.kv.Del(ctx, typingKey(conversationID, userID))
}

// GetTyping returns the set of userIds currently typing in a
// conversation via a pattern scan.
func (c *Core) GetTyping(ctx context.Context, conversationID string) ([]string, error) {
	keys, err := c.kv.ScanKeys(ctx, typingPattern(conversationID))
	if err != nil {
		return nil, err
	}
	prefix := "presence:typing:" + conversationID + ":"
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}

func (c *Core) clearAllTyping(ctx context.Context, userID string) error {
	keys, err := c.kv.ScanKeys(ctx, "presence:typing:*:"+userID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.kv.Del(ctx, keys...)
}
