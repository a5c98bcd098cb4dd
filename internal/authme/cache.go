package authme

import (
	"context"
	"encoding/json"
	"time"

	rdb "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// accountCache is a Redis read-through cache for account lookups. A nil
// cache is valid and disables caching entirely.
type accountCache struct {
	client *rdb.Client
	ttl    time.Duration
}

func newAccountCache(addr string, db int, ttl time.Duration) *accountCache {
	return &accountCache{
		client: rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		ttl:    ttl,
	}
}

func cacheKey(usernameLower string) string {
	return "authme:account:" + usernameLower
}

func (c *accountCache) get(ctx context.Context, usernameLower string) (*Account, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, errGet := c.client.Get(ctx, cacheKey(usernameLower)).Bytes()
	if errGet != nil {
		return nil, false
	}
	var account Account
	if errUnmarshal := json.Unmarshal(data, &account); errUnmarshal != nil {
		return nil, false
	}
	return &account, true
}

func (c *accountCache) set(ctx context.Context, usernameLower string, account *Account) {
	if c == nil || c.client == nil || account == nil {
		return
	}
	data, errMarshal := json.Marshal(account)
	if errMarshal != nil {
		return
	}
	if errSet := c.client.Set(ctx, cacheKey(usernameLower), data, c.ttl).Err(); errSet != nil {
		log.WithError(errSet).Debug("authme: cache set failed")
	}
}
