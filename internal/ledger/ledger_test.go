package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/craftbound/portal/internal/authme"
	"github.com/craftbound/portal/internal/luckperms"
	"github.com/craftbound/portal/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.MinecraftProfile{},
		&models.AuthmeBinding{},
		&models.AuthmeBindingHistory{},
	); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

// fakeBridge serves canned AuthMe accounts keyed by lowercase username.
type fakeBridge struct {
	accounts map[string]*authme.Account
	err      error
}

func (f *fakeBridge) GetAccount(_ context.Context, identifier string) (*authme.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	account, ok := f.accounts[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, nil
	}
	return account, nil
}

// fakePlayers serves canned permissions-service players.
type fakePlayers struct {
	byUUID     map[string]*luckperms.Player
	byUsername map[string]*luckperms.Player
	err        error
}

func (f *fakePlayers) GetPlayerByUUID(_ context.Context, id string) (*luckperms.Player, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUUID[id], nil
}

func (f *fakePlayers) GetPlayerByUsername(_ context.Context, username string) (*luckperms.Player, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUsername[strings.ToLower(username)], nil
}

func steveBridge() *fakeBridge {
	return &fakeBridge{accounts: map[string]*authme.Account{
		"steve": {Username: "steve", Realname: "SteveR"},
		"alex":  {Username: "alex", Realname: "Alex"},
	}}
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "x"}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &user
}

func primaryBindingID(t *testing.T, db *gorm.DB, userID uint64) *uint64 {
	t.Helper()
	var profile models.Profile
	errFind := db.Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil
	}
	if errFind != nil {
		t.Fatalf("find profile: %v", errFind)
	}
	return profile.PrimaryAuthmeBindingID
}

func historyByAction(t *testing.T, db *gorm.DB, userID uint64, action string) []models.AuthmeBindingHistory {
	t.Helper()
	var entries []models.AuthmeBindingHistory
	if errFind := db.Where("user_id = ? AND action = ?", userID, action).
		Order("id ASC").Find(&entries).Error; errFind != nil {
		t.Fatalf("find history: %v", errFind)
	}
	return entries
}

func TestBindCreatesBindingWithoutPrimary(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	before := time.Now().UTC().Add(-time.Second)
	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	if binding.AuthmeUsername != "steve" {
		t.Fatalf("unexpected username: %q", binding.AuthmeUsername)
	}
	if binding.AuthmeUsernameLower != "steve" {
		t.Fatalf("unexpected username lower: %q", binding.AuthmeUsernameLower)
	}
	if binding.AuthmeRealname != "SteveR" {
		t.Fatalf("unexpected realname: %q", binding.AuthmeRealname)
	}
	if binding.BoundAt.Before(before) {
		t.Fatalf("bound_at not set: %v", binding.BoundAt)
	}
	if got := primaryBindingID(t, db, user.ID); got != nil {
		t.Fatalf("expected no primary after plain bind, got %d", *got)
	}
	if entries := historyByAction(t, db, user.ID, models.BindingActionManualEntry); len(entries) != 1 {
		t.Fatalf("expected 1 MANUAL_ENTRY, got %d", len(entries))
	}
}

func TestBindSameUsernameUpdatesExistingRow(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	bridge := steveBridge()
	svc := NewService(db, bridge, nil)
	user := createUser(t, db, "steve_site")

	first, errFirst := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errFirst != nil {
		t.Fatalf("first bind: %v", errFirst)
	}

	// Suspend the binding; a re-bind must refresh realname and reset status.
	if errSuspend := db.Model(&models.AuthmeBinding{}).
		Where("id = ?", first.ID).
		Update("status", models.BindingStatusSuspended).Error; errSuspend != nil {
		t.Fatalf("suspend binding: %v", errSuspend)
	}

	bridge.accounts["steve"].Realname = "SteveRenamed"
	second, errSecond := svc.Bind(context.Background(), user.ID, "STEVE", BindOptions{})
	if errSecond != nil {
		t.Fatalf("second bind: %v", errSecond)
	}

	if first.ID != second.ID {
		t.Fatalf("expected upsert to reuse row %d, got %d", first.ID, second.ID)
	}
	if second.AuthmeRealname != "SteveRenamed" {
		t.Fatalf("realname not refreshed: %q", second.AuthmeRealname)
	}
	if second.Status != models.BindingStatusActive {
		t.Fatalf("expected re-bind to reset status, got %q", second.Status)
	}

	var count int64
	if errCount := db.Model(&models.AuthmeBinding{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count bindings: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 binding row, got %d", count)
	}
	if entries := historyByAction(t, db, user.ID, models.BindingActionManualEntry); len(entries) != 2 {
		t.Fatalf("expected 2 MANUAL_ENTRY rows, got %d", len(entries))
	}
}

func TestBindErrors(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	user := createUser(t, db, "steve_site")

	svc := NewService(db, steveBridge(), nil)
	if _, errBind := svc.Bind(context.Background(), user.ID, "   ", BindOptions{}); !errors.Is(errBind, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty identifier, got %v", errBind)
	}
	if _, errBind := svc.Bind(context.Background(), user.ID, "Herobrine", BindOptions{}); !errors.Is(errBind, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", errBind)
	}
	if _, errBind := svc.Bind(context.Background(), user.ID+100, "Steve", BindOptions{}); !errors.Is(errBind, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", errBind)
	}

	down := NewService(db, &fakeBridge{err: errors.New("connection refused")}, nil)
	if _, errBind := down.Bind(context.Background(), user.ID, "Steve", BindOptions{}); !errors.Is(errBind, ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", errBind)
	}
}

func TestSetPrimarySwitchAppendsUnsetForPrevious(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	b1, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{SetPrimary: true})
	if errBind != nil {
		t.Fatalf("bind steve: %v", errBind)
	}
	b2, errBind := svc.Bind(context.Background(), user.ID, "Alex", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind alex: %v", errBind)
	}

	if got := primaryBindingID(t, db, user.ID); got == nil || *got != b1.ID {
		t.Fatalf("expected %d primary after bind, got %v", b1.ID, got)
	}

	if _, errSet := svc.SetPrimary(context.Background(), user.ID, b2.ID, nil); errSet != nil {
		t.Fatalf("set primary: %v", errSet)
	}
	if got := primaryBindingID(t, db, user.ID); got == nil || *got != b2.ID {
		t.Fatalf("expected %d primary after switch, got %v", b2.ID, got)
	}

	unsets := historyByAction(t, db, user.ID, models.BindingActionPrimaryUnset)
	if len(unsets) != 1 || unsets[0].BindingID == nil || *unsets[0].BindingID != b1.ID {
		t.Fatalf("expected 1 PRIMARY_UNSET for binding %d, got %+v", b1.ID, unsets)
	}
	sets := historyByAction(t, db, user.ID, models.BindingActionPrimarySet)
	if len(sets) != 2 {
		t.Fatalf("expected 2 PRIMARY_SET rows, got %d", len(sets))
	}
}

func TestSetPrimaryUnknownBinding(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")
	other := createUser(t, db, "alex_site")

	binding, errBind := svc.Bind(context.Background(), other.ID, "Alex", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	// Belongs to the other user.
	if _, errSet := svc.SetPrimary(context.Background(), user.ID, binding.ID, nil); !errors.Is(errSet, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errSet)
	}
}

func TestUnbindPrimaryAutoReassignsEarliestBound(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	b1, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{SetPrimary: true})
	if errBind != nil {
		t.Fatalf("bind steve: %v", errBind)
	}
	b2, errBind := svc.Bind(context.Background(), user.ID, "Alex", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind alex: %v", errBind)
	}
	// Make ordering explicit: b2 bound after b1.
	if errSet := db.Model(&models.AuthmeBinding{}).Where("id = ?", b2.ID).
		Update("bound_at", b1.BoundAt.Add(time.Hour)).Error; errSet != nil {
		t.Fatalf("set bound_at: %v", errSet)
	}

	nick := models.MinecraftProfile{UserID: user.ID, Nickname: "SteveNick", AuthmeBindingID: &b1.ID}
	if errCreate := db.Create(&nick).Error; errCreate != nil {
		t.Fatalf("create nickname: %v", errCreate)
	}

	if errUnbind := svc.Unbind(context.Background(), user.ID, b1.ID, nil, ""); errUnbind != nil {
		t.Fatalf("unbind: %v", errUnbind)
	}

	if got := primaryBindingID(t, db, user.ID); got == nil || *got != b2.ID {
		t.Fatalf("expected auto-reassigned primary %d, got %v", b2.ID, got)
	}

	var reloaded models.MinecraftProfile
	if errFind := db.First(&reloaded, nick.ID).Error; errFind != nil {
		t.Fatalf("reload nickname: %v", errFind)
	}
	if reloaded.AuthmeBindingID != nil {
		t.Fatalf("expected nickname cross-reference cleared, got %d", *reloaded.AuthmeBindingID)
	}

	var autoSets int
	for _, entry := range historyByAction(t, db, user.ID, models.BindingActionPrimarySet) {
		if strings.Contains(string(entry.Payload), `"auto":true`) {
			autoSets++
		}
	}
	if autoSets != 1 {
		t.Fatalf("expected exactly 1 auto PRIMARY_SET, got %d", autoSets)
	}

	var gone models.AuthmeBinding
	if errFind := db.First(&gone, b1.ID).Error; !errors.Is(errFind, gorm.ErrRecordNotFound) {
		t.Fatalf("expected binding deleted, got %v", errFind)
	}
}

func TestUnbindLastBindingLeavesNoPrimary(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{SetPrimary: true})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}
	if errUnbind := svc.Unbind(context.Background(), user.ID, binding.ID, nil, ""); errUnbind != nil {
		t.Fatalf("unbind: %v", errUnbind)
	}

	if got := primaryBindingID(t, db, user.ID); got != nil {
		t.Fatalf("expected no primary after last unbind, got %d", *got)
	}

	// The history survives the binding deletion.
	unbinds := historyByAction(t, db, user.ID, models.BindingActionUnbind)
	if len(unbinds) != 1 || unbinds[0].BindingID == nil || *unbinds[0].BindingID != binding.ID {
		t.Fatalf("expected UNBIND entry for binding %d, got %+v", binding.ID, unbinds)
	}
}

func TestTransferClearsOldOwnerPointers(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	binding, errBind := svc.Bind(context.Background(), alice.ID, "Steve", BindOptions{SetPrimary: true})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}
	nick := models.MinecraftProfile{UserID: alice.ID, Nickname: "SteveNick", AuthmeBindingID: &binding.ID}
	if errCreate := db.Create(&nick).Error; errCreate != nil {
		t.Fatalf("create nickname: %v", errCreate)
	}

	transferred, errUpdate := svc.Update(context.Background(), alice.ID, binding.ID, UpdatePatch{TargetUserID: &bob.ID}, nil)
	if errUpdate != nil {
		t.Fatalf("transfer: %v", errUpdate)
	}

	if transferred.UserID != bob.ID {
		t.Fatalf("expected owner %d, got %d", bob.ID, transferred.UserID)
	}
	if got := primaryBindingID(t, db, alice.ID); got != nil {
		t.Fatalf("expected old owner primary cleared, got %d", *got)
	}
	// No implicit promotion on the new owner.
	if got := primaryBindingID(t, db, bob.ID); got != nil {
		t.Fatalf("expected no primary on new owner, got %d", *got)
	}

	var reloaded models.MinecraftProfile
	if errFind := db.First(&reloaded, nick.ID).Error; errFind != nil {
		t.Fatalf("reload nickname: %v", errFind)
	}
	if reloaded.AuthmeBindingID != nil {
		t.Fatalf("expected nickname cross-reference cleared, got %d", *reloaded.AuthmeBindingID)
	}

	transfers := historyByAction(t, db, bob.ID, models.BindingActionTransfer)
	if len(transfers) != 1 {
		t.Fatalf("expected 1 TRANSFER entry, got %d", len(transfers))
	}
	payload := string(transfers[0].Payload)
	if !strings.Contains(payload, fmt.Sprintf(`"from_user_id":%d`, alice.ID)) ||
		!strings.Contains(payload, fmt.Sprintf(`"to_user_id":%d`, bob.ID)) {
		t.Fatalf("unexpected transfer payload: %s", payload)
	}
}

func TestTransferToMissingUser(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	alice := createUser(t, db, "alice")

	binding, errBind := svc.Bind(context.Background(), alice.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	missing := alice.ID + 100
	if _, errUpdate := svc.Update(context.Background(), alice.ID, binding.ID, UpdatePatch{TargetUserID: &missing}, nil); !errors.Is(errUpdate, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errUpdate)
	}

	// The aborted transaction must leave the binding untouched.
	var reloaded models.AuthmeBinding
	if errFind := db.First(&reloaded, binding.ID).Error; errFind != nil {
		t.Fatalf("reload binding: %v", errFind)
	}
	if reloaded.UserID != alice.ID {
		t.Fatalf("expected owner unchanged, got %d", reloaded.UserID)
	}
}

func TestUpdatePatchAndStatusValidation(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	binding, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	if errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}

	status := models.BindingStatusSuspended
	notes := "reported for griefing"
	updated, errUpdate := svc.Update(context.Background(), user.ID, binding.ID, UpdatePatch{Status: &status, Notes: &notes}, nil)
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	if updated.Status != models.BindingStatusSuspended || updated.Notes != notes {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if entries := historyByAction(t, db, user.ID, models.BindingActionUpdate); len(entries) != 1 {
		t.Fatalf("expected 1 UPDATE entry, got %d", len(entries))
	}

	bad := "banned"
	if _, errUpdate := svc.Update(context.Background(), user.ID, binding.ID, UpdatePatch{Status: &bad}, nil); !errors.Is(errUpdate, ErrValidation) {
		t.Fatalf("expected ErrValidation for status %q, got %v", bad, errUpdate)
	}
}

func TestHistoryIsAppendOnlyAcrossMutations(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	countHistory := func() int64 {
		var count int64
		if errCount := db.Model(&models.AuthmeBindingHistory{}).Count(&count).Error; errCount != nil {
			t.Fatalf("count history: %v", errCount)
		}
		return count
	}

	last := countHistory()
	b1, _ := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{})
	b2, _ := svc.Bind(context.Background(), user.ID, "Alex", BindOptions{})
	steps := []func() error{
		func() error { _, err := svc.SetPrimary(context.Background(), user.ID, b1.ID, nil); return err },
		func() error { _, err := svc.SetPrimary(context.Background(), user.ID, b2.ID, nil); return err },
		func() error { return svc.Unbind(context.Background(), user.ID, b2.ID, nil, "") },
		func() error { return svc.Unbind(context.Background(), user.ID, b1.ID, nil, "") },
	}
	for i, step := range steps {
		if errStep := step(); errStep != nil {
			t.Fatalf("step %d: %v", i, errStep)
		}
		now := countHistory()
		if now <= last {
			t.Fatalf("step %d: history shrank or stalled (%d -> %d)", i, last, now)
		}
		last = now
	}
}

func TestHistoryPaging(t *testing.T) {
	t.Parallel()

	db := setupLedgerTestDB(t)
	svc := NewService(db, steveBridge(), nil)
	user := createUser(t, db, "steve_site")

	for i := 0; i < 5; i++ {
		if _, errBind := svc.Bind(context.Background(), user.ID, "Steve", BindOptions{}); errBind != nil {
			t.Fatalf("bind %d: %v", i, errBind)
		}
	}

	page1, total, errPage := svc.History(context.Background(), user.ID, 1, 2)
	if errPage != nil {
		t.Fatalf("history: %v", errPage)
	}
	if total != 5 {
		t.Fatalf("expected 5 total, got %d", total)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page1))
	}
	page3, _, errPage := svc.History(context.Background(), user.ID, 3, 2)
	if errPage != nil {
		t.Fatalf("history page 3: %v", errPage)
	}
	if len(page3) != 1 {
		t.Fatalf("expected 1 entry on last page, got %d", len(page3))
	}
}
