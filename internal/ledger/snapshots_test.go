package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/craftbound/portal/internal/authme"
	"github.com/craftbound/portal/internal/luckperms"
	"github.com/craftbound/portal/internal/models"
)

func TestComposeSnapshotsLiveData(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	ip := "203.0.113.7"
	lastLogin := time.Now().UTC().Truncate(time.Millisecond)
	bridge := &fakeBridge{accounts: map[string]*authme.Account{
		"steve": {Username: "steve", Realname: "SteveR", IP: &ip, LastLogin: &lastLogin},
	}}
	players := &fakePlayers{byUsername: map[string]*luckperms.Player{
		"steve": {UUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5", Username: "steve", PrimaryGroup: "vip", Groups: []string{"default", "vip"}},
	}}
	svc := NewService(db, bridge, players)
	user := createUser(t, db, "steve_site")

	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	set := svc.ComposeSnapshots(context.Background(), []models.AuthmeBinding{*binding})
	if len(set.Bindings) != 1 || len(set.Permissions) != 1 {
		t.Fatalf("unexpected snapshot counts: %d/%d", len(set.Bindings), len(set.Permissions))
	}

	account := set.Bindings[0]
	if account.SourceStatus != SourceStatusOK {
		t.Fatalf("expected ok account snapshot, got %q", account.SourceStatus)
	}
	if account.IP == nil || *account.IP != ip {
		t.Fatalf("expected ip %q, got %v", ip, account.IP)
	}
	if account.LastLogin == nil || !account.LastLogin.Equal(lastLogin) {
		t.Fatalf("expected lastlogin %v, got %v", lastLogin, account.LastLogin)
	}

	perms := set.Permissions[0]
	if perms.SourceStatus != SourceStatusOK {
		t.Fatalf("expected ok permissions snapshot, got %q", perms.SourceStatus)
	}
	if perms.PrimaryGroup == nil || *perms.PrimaryGroup != "vip" {
		t.Fatalf("expected primary group vip, got %v", perms.PrimaryGroup)
	}

	// The resolved UUID is cached back onto the binding row.
	var reloaded models.AuthmeBinding
	if errFind := db.First(&reloaded, binding.ID).Error; errFind != nil {
		t.Fatalf("reload binding: %v", errFind)
	}
	if reloaded.AuthmeUUID == nil || *reloaded.AuthmeUUID != "069a79f4-44e9-4726-a5be-fca90e38aaf5" {
		t.Fatalf("expected uuid cache fill, got %v", reloaded.AuthmeUUID)
	}
}

func TestComposeSnapshotsDegradesOnBridgeFailure(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	// Bridge goes down between bind and read.
	down := NewService(db, &fakeBridge{err: errors.New("connection refused")}, nil)
	set := down.ComposeSnapshots(context.Background(), []models.AuthmeBinding{*binding})

	account := set.Bindings[0]
	if account.SourceStatus != SourceStatusDegraded {
		t.Fatalf("expected degraded account snapshot, got %q", account.SourceStatus)
	}
	if account.IP != nil || account.LastLogin != nil {
		t.Fatalf("expected null live fields, got %+v", account)
	}
	// The stored binding itself is still served.
	if account.Binding.ID != binding.ID || account.Binding.AuthmeUsername != "steve" {
		t.Fatalf("stored binding missing from degraded snapshot: %+v", account.Binding)
	}

	if set.Permissions[0].SourceStatus != SourceStatusDegraded {
		t.Fatalf("expected degraded permissions snapshot without a player source")
	}
}

func TestComposeSnapshotsDegradesOnPlayerFailure(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), &fakePlayers{err: errors.New("gateway timeout")})
	user := createUser(t, db, "steve_site")

	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	set := svc.ComposeSnapshots(context.Background(), []models.AuthmeBinding{*binding})
	if set.Bindings[0].SourceStatus != SourceStatusOK {
		t.Fatalf("expected ok account snapshot, got %q", set.Bindings[0].SourceStatus)
	}
	if set.Permissions[0].SourceStatus != SourceStatusDegraded {
		t.Fatalf("expected degraded permissions snapshot, got %q", set.Permissions[0].SourceStatus)
	}
	if set.Permissions[0].UUID != nil {
		t.Fatalf("expected null uuid in degraded snapshot, got %v", set.Permissions[0].UUID)
	}
}

func TestComposeSnapshotsPrefersStoredUUID(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	uuid := "069a79f4-44e9-4726-a5be-fca90e38aaf5"
	players := &fakePlayers{byUUID: map[string]*luckperms.Player{
		uuid: {UUID: uuid, Username: "steve", PrimaryGroup: "admin"},
	}}
	svc := NewService(db, steveBridge(), players)
	user := createUser(t, db, "steve_site")

	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}
	if errSet := db.Model(&models.AuthmeBinding{}).Where("id = ?", binding.ID).
		Update("authme_uuid", uuid).Error; errSet != nil {
		t.Fatalf("seed uuid: %v", errSet)
	}
	binding.AuthmeUUID = &uuid

	// No byUsername entry: only the UUID path can succeed.
	set := svc.ComposeSnapshots(context.Background(), []models.AuthmeBinding{*binding})
	perms := set.Permissions[0]
	if perms.SourceStatus != SourceStatusOK {
		t.Fatalf("expected ok permissions snapshot, got %q", perms.SourceStatus)
	}
	if perms.PrimaryGroup == nil || *perms.PrimaryGroup != "admin" {
		t.Fatalf("expected lookup by stored uuid, got %+v", perms)
	}
}

// meetingBridge answers only after the permissions lookup has started.
type meetingBridge struct {
	started chan struct{}
	other   chan struct{}
}

func (b *meetingBridge) GetAccount(_ context.Context, _ string) (*authme.Account, error) {
	close(b.started)
	select {
	case <-b.other:
		return &authme.Account{Username: "steve", Realname: "Steve"}, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("permissions lookup never started")
	}
}

// meetingPlayers answers only after the bridge lookup has started.
type meetingPlayers struct {
	started chan struct{}
	other   chan struct{}
}

func (p *meetingPlayers) GetPlayerByUUID(ctx context.Context, _ string) (*luckperms.Player, error) {
	return p.GetPlayerByUsername(ctx, "")
}

func (p *meetingPlayers) GetPlayerByUsername(_ context.Context, _ string) (*luckperms.Player, error) {
	close(p.started)
	select {
	case <-p.other:
		return &luckperms.Player{Username: "steve"}, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("bridge lookup never started")
	}
}

func TestComposeSnapshotsQueriesSourcesInParallel(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	bridgeStarted := make(chan struct{})
	playersStarted := make(chan struct{})
	bridge := &meetingBridge{started: bridgeStarted, other: playersStarted}
	players := &meetingPlayers{started: playersStarted, other: bridgeStarted}
	svc := NewService(db, bridge, players)

	binding := models.AuthmeBinding{ID: 1, UserID: 1, AuthmeUsername: "steve", AuthmeUsernameLower: "steve"}
	set := svc.ComposeSnapshots(context.Background(), []models.AuthmeBinding{binding})

	// Each fake only answers once the other lookup has begun, so a
	// sequential composition would time out and degrade both snapshots.
	if set.Bindings[0].SourceStatus != SourceStatusOK {
		t.Fatalf("expected ok account snapshot, got %q", set.Bindings[0].SourceStatus)
	}
	if set.Permissions[0].SourceStatus != SourceStatusOK {
		t.Fatalf("expected ok permissions snapshot, got %q", set.Permissions[0].SourceStatus)
	}
}
