package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/craftbound/portal/internal/luckperms"
	"github.com/craftbound/portal/internal/models"
	log "github.com/sirupsen/logrus"
)

// Snapshot source states.
const (
	// SourceStatusOK marks fields populated from a live lookup.
	SourceStatusOK = "ok"
	// SourceStatusDegraded marks fields nulled because a lookup failed.
	SourceStatusDegraded = "degraded"
)

// BindingSnapshot combines a stored binding with live AuthMe login metadata.
type BindingSnapshot struct {
	Binding      models.AuthmeBinding `json:"binding"`
	SourceStatus string               `json:"source_status"`
	IP           *string              `json:"ip"`
	RegIP        *string              `json:"regip"`
	LastLogin    *time.Time           `json:"lastlogin"`
	RegDate      *time.Time           `json:"regdate"`
}

// PermissionsSnapshot carries live group data from the permissions service.
type PermissionsSnapshot struct {
	BindingID    uint64   `json:"binding_id"`
	UUID         *string  `json:"uuid"`
	PrimaryGroup *string  `json:"primary_group"`
	Groups       []string `json:"groups"`
	Prefix       *string  `json:"prefix"`
	SourceStatus string   `json:"source_status"`
}

// SnapshotSet is the result of ComposeSnapshots.
type SnapshotSet struct {
	Bindings    []BindingSnapshot     `json:"bindings"`
	Permissions []PermissionsSnapshot `json:"permissions_snapshots"`
}

// snapshotConcurrency bounds parallel external lookups per call.
const snapshotConcurrency = 8

// ComposeSnapshots enriches stored bindings with live AuthMe and permissions
// data, fanned out concurrently per binding.
//
// Every external failure degrades the affected fields to null and marks the
// snapshot degraded; the call itself never fails on an external error. A UUID
// newly resolved by the permissions service is persisted back onto the
// binding as a best-effort cache fill.
func (s *Service) ComposeSnapshots(ctx context.Context, bindings []models.AuthmeBinding) *SnapshotSet {
	set := &SnapshotSet{
		Bindings:    make([]BindingSnapshot, len(bindings)),
		Permissions: make([]PermissionsSnapshot, len(bindings)),
	}

	sem := make(chan struct{}, snapshotConcurrency)
	var wg sync.WaitGroup

	for i := range bindings {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Remaining bindings degrade without live data.
			for j := i; j < len(bindings); j++ {
				set.Bindings[j] = BindingSnapshot{Binding: bindings[j], SourceStatus: SourceStatusDegraded}
				set.Permissions[j] = PermissionsSnapshot{BindingID: bindings[j].ID, SourceStatus: SourceStatusDegraded}
			}
			wg.Wait()
			return set
		}

		wg.Add(1)
		idx := i
		binding := bindings[i]
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			// The two sources are independent; query them in parallel.
			var lookups sync.WaitGroup
			lookups.Add(2)
			go func() {
				defer lookups.Done()
				set.Bindings[idx] = s.composeAccountSnapshot(ctx, binding)
			}()
			go func() {
				defer lookups.Done()
				set.Permissions[idx] = s.composePermissionsSnapshot(ctx, binding)
			}()
			lookups.Wait()
		}()
	}

	wg.Wait()
	return set
}

// composeAccountSnapshot queries the bridge for live login metadata.
func (s *Service) composeAccountSnapshot(ctx context.Context, binding models.AuthmeBinding) BindingSnapshot {
	snapshot := BindingSnapshot{Binding: binding, SourceStatus: SourceStatusOK}
	if s.bridge == nil {
		snapshot.SourceStatus = SourceStatusDegraded
		return snapshot
	}

	account, errGet := s.bridge.GetAccount(ctx, binding.AuthmeUsernameLower)
	if errGet != nil || account == nil {
		if errGet != nil {
			log.WithError(errGet).WithField("username", binding.AuthmeUsernameLower).
				Warn("authme snapshot lookup failed")
		}
		snapshot.SourceStatus = SourceStatusDegraded
		return snapshot
	}

	snapshot.IP = account.IP
	snapshot.RegIP = account.RegIP
	snapshot.LastLogin = account.LastLogin
	snapshot.RegDate = account.RegDate
	return snapshot
}

// composePermissionsSnapshot queries the permissions service, preferring the
// stored UUID and falling back to a username lookup.
func (s *Service) composePermissionsSnapshot(ctx context.Context, binding models.AuthmeBinding) PermissionsSnapshot {
	snapshot := PermissionsSnapshot{BindingID: binding.ID, SourceStatus: SourceStatusOK}
	if s.players == nil {
		snapshot.SourceStatus = SourceStatusDegraded
		return snapshot
	}

	var (
		player *luckperms.Player
		errGet error
	)
	if binding.AuthmeUUID != nil && strings.TrimSpace(*binding.AuthmeUUID) != "" {
		player, errGet = s.players.GetPlayerByUUID(ctx, *binding.AuthmeUUID)
	} else {
		player, errGet = s.players.GetPlayerByUsername(ctx, binding.AuthmeUsernameLower)
	}
	if errGet != nil {
		log.WithError(errGet).WithField("username", binding.AuthmeUsernameLower).
			Warn("permissions snapshot lookup failed")
		snapshot.SourceStatus = SourceStatusDegraded
		return snapshot
	}
	if player == nil || player.UUID == "" {
		return snapshot
	}

	snapshot.UUID = &player.UUID
	if player.PrimaryGroup != "" {
		snapshot.PrimaryGroup = &player.PrimaryGroup
	}
	snapshot.Groups = player.Groups
	if player.Prefix != "" {
		snapshot.Prefix = &player.Prefix
	}

	if binding.AuthmeUUID == nil || *binding.AuthmeUUID != player.UUID {
		s.cacheBindingUUID(ctx, binding.ID, player.UUID)
	}
	return snapshot
}

// cacheBindingUUID persists a lazily resolved UUID, swallowing failures.
func (s *Service) cacheBindingUUID(ctx context.Context, bindingID uint64, id string) {
	if errUpdate := s.db.WithContext(ctx).Model(&models.AuthmeBinding{}).
		Where("id = ?", bindingID).
		Update("authme_uuid", id).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("binding_id", bindingID).
			Warn("authme uuid cache fill failed")
	}
}
