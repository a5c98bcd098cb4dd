package authme

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/craftbound/portal/internal/db"
	"gorm.io/gorm"
)

// Account is one row of the AuthMe registrations table.
type Account struct {
	Username  string     `json:"username"`  // Canonical lowercase username.
	Realname  string     `json:"realname"`  // Username with original casing.
	IP        *string    `json:"ip"`        // Last login source IP.
	RegIP     *string    `json:"regip"`     // Registration source IP.
	LastLogin *time.Time `json:"lastlogin"` // Last login time.
	RegDate   *time.Time `json:"regdate"`   // Registration time.
}

// Client reads from the AuthMe plugin's own database.
//
// The data source is independently owned and must be assumed slow or down;
// every lookup runs under a bounded timeout and callers outside the bind path
// are expected to degrade on error rather than fail.
type Client struct {
	db      *gorm.DB
	table   string
	cache   *accountCache
	timeout time.Duration
}

// Options configures a Client.
type Options struct {
	Table     string        // AuthMe table name, defaults to "authme".
	Timeout   time.Duration // Per-lookup timeout, defaults to 5s.
	RedisAddr string        // Optional Redis cache address.
	RedisDB   int           // Redis database index.
	CacheTTL  time.Duration // Cache TTL, defaults to 1m.
}

// NewClient opens the AuthMe database at dsn and returns a Client.
func NewClient(dsn string, opts Options) (*Client, error) {
	conn, err := dbutil.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("authme: open: %w", err)
	}
	return NewClientWithDB(conn, opts), nil
}

// NewClientWithDB wraps an existing connection, used by tests.
func NewClientWithDB(conn *gorm.DB, opts Options) *Client {
	table := strings.TrimSpace(opts.Table)
	if table == "" {
		table = "authme"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var cache *accountCache
	if strings.TrimSpace(opts.RedisAddr) != "" {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		cache = newAccountCache(opts.RedisAddr, opts.RedisDB, ttl)
	}
	return &Client{db: conn, table: table, cache: cache, timeout: timeout}
}

// accountRow mirrors the AuthMe table columns the portal reads.
type accountRow struct {
	Username  string  `gorm:"column:username"`
	Realname  string  `gorm:"column:realname"`
	IP        *string `gorm:"column:ip"`
	RegIP     *string `gorm:"column:regip"`
	LastLogin *int64  `gorm:"column:lastlogin"`
	RegDate   *int64  `gorm:"column:regdate"`
}

// GetAccount looks up an AuthMe account by username, case-insensitively.
// It returns (nil, nil) when no account exists for the identifier.
func (c *Client) GetAccount(ctx context.Context, identifier string) (*Account, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("authme: client not initialized")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("authme: empty identifier")
	}
	lower := strings.ToLower(identifier)

	if cached, ok := c.cache.get(ctx, lower); ok {
		return cached, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var row accountRow
	errFind := c.db.WithContext(lookupCtx).Table(c.table).
		Where("LOWER(username) = ?", lower).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("authme: lookup %s: %w", lower, errFind)
	}

	account := row.toAccount()
	c.cache.set(ctx, lower, account)
	return account, nil
}

// ListPlayers returns a page of AuthMe accounts matching query.
func (c *Client) ListPlayers(ctx context.Context, query string, page, pageSize int) ([]Account, int64, error) {
	if c == nil || c.db == nil {
		return nil, 0, errors.New("authme: client not initialized")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := c.db.WithContext(lookupCtx).Table(c.table)
	if trimmed := strings.TrimSpace(query); trimmed != "" {
		q = q.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(trimmed)+"%")
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("authme: count players: %w", errCount)
	}

	var rows []accountRow
	if errFind := q.Order("username ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("authme: list players: %w", errFind)
	}

	out := make([]Account, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toAccount())
	}
	return out, total, nil
}

// toAccount converts a table row, mapping AuthMe's millisecond epochs.
func (r accountRow) toAccount() *Account {
	account := &Account{
		Username: strings.ToLower(strings.TrimSpace(r.Username)),
		Realname: strings.TrimSpace(r.Realname),
		IP:       r.IP,
		RegIP:    r.RegIP,
	}
	if account.Realname == "" {
		account.Realname = r.Username
	}
	account.LastLogin = millisToTime(r.LastLogin)
	account.RegDate = millisToTime(r.RegDate)
	return account
}

// millisToTime converts an epoch-millisecond column, nil or zero means unset.
func millisToTime(millis *int64) *time.Time {
	if millis == nil || *millis <= 0 {
		return nil
	}
	t := time.UnixMilli(*millis).UTC()
	return &t
}
