package luckperms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Player is the subset of a LuckPerms user record the portal consumes.
type Player struct {
	UUID         string   `json:"uuid"`          // Mojang UUID in canonical form.
	Username     string   `json:"username"`      // Username known to the permissions service.
	PrimaryGroup string   `json:"primary_group"` // Primary group name.
	Groups       []string `json:"groups"`        // All inherited group names.
	Prefix       string   `json:"prefix"`        // Chat prefix, if any.
}

// Client talks to the LuckPerms REST API of the game server.
type Client struct {
	http *resty.Client
}

// Config holds client settings.
type Config struct {
	BaseURL string        // REST API base URL.
	APIKey  string        // Optional bearer key.
	Timeout time.Duration // Request timeout, defaults to 5s.
}

// NewClient builds a Client, or nil when no base URL is configured.
func NewClient(cfg Config) *Client {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		cli.SetAuthToken(key)
	}
	return &Client{http: cli}
}

// userResponse mirrors the LuckPerms REST user document.
type userResponse struct {
	UniqueID string   `json:"uniqueId"`
	Username string   `json:"username"`
	Nodes    []node   `json:"nodes"`
	Metadata metadata `json:"metadata"`
}

type node struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value bool   `json:"value"`
}

type metadata struct {
	PrimaryGroup string `json:"primaryGroup"`
	Prefix       string `json:"prefix"`
}

// lookupResponse mirrors the username-to-UUID lookup document.
type lookupResponse struct {
	UniqueID string `json:"uniqueId"`
	Username string `json:"username"`
}

// GetPlayerByUUID fetches a player record by UUID.
// It returns (nil, nil) when the service does not know the UUID.
func (c *Client) GetPlayerByUUID(ctx context.Context, id string) (*Player, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("luckperms: client not configured")
	}
	parsed, errParse := uuid.Parse(strings.TrimSpace(id))
	if errParse != nil {
		return nil, fmt.Errorf("luckperms: invalid uuid %q: %w", id, errParse)
	}

	var body userResponse
	resp, errGet := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/user/" + parsed.String())
	if errGet != nil {
		return nil, fmt.Errorf("luckperms: get user: %w", errGet)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("luckperms: get user: status %d", resp.StatusCode())
	}
	return body.toPlayer(), nil
}

// GetPlayerByUsername resolves a username to a player record.
// It returns (nil, nil) when the service does not know the username.
func (c *Client) GetPlayerByUsername(ctx context.Context, username string) (*Player, error) {
	if c == nil || c.http == nil {
		return nil, errors.New("luckperms: client not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("luckperms: empty username")
	}

	var lookup lookupResponse
	resp, errGet := c.http.R().
		SetContext(ctx).
		SetQueryParam("username", username).
		SetResult(&lookup).
		Get("/user/lookup")
	if errGet != nil {
		return nil, fmt.Errorf("luckperms: lookup user: %w", errGet)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("luckperms: lookup user: status %d", resp.StatusCode())
	}
	if strings.TrimSpace(lookup.UniqueID) == "" {
		return nil, nil
	}
	return c.GetPlayerByUUID(ctx, lookup.UniqueID)
}

// toPlayer flattens the REST document, extracting group nodes.
func (r userResponse) toPlayer() *Player {
	player := &Player{
		UUID:         strings.TrimSpace(r.UniqueID),
		Username:     strings.TrimSpace(r.Username),
		PrimaryGroup: strings.TrimSpace(r.Metadata.PrimaryGroup),
		Prefix:       r.Metadata.Prefix,
	}
	for _, n := range r.Nodes {
		if !n.Value {
			continue
		}
		name := ""
		switch {
		case n.Type == "inheritance":
			name = strings.TrimPrefix(n.Key, "group.")
		case strings.HasPrefix(n.Key, "group."):
			name = strings.TrimPrefix(n.Key, "group.")
		}
		if name != "" {
			player.Groups = append(player.Groups, name)
		}
	}
	return player
}
