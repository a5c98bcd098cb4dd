package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craftbound/portal/internal/authme"
	dbutil "github.com/craftbound/portal/internal/db"
	"github.com/craftbound/portal/internal/luckperms"
	"github.com/craftbound/portal/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountSource resolves AuthMe accounts, normally the authme.Client.
type AccountSource interface {
	GetAccount(ctx context.Context, identifier string) (*authme.Account, error)
}

// PlayerSource resolves player records from the permissions service.
type PlayerSource interface {
	GetPlayerByUUID(ctx context.Context, id string) (*luckperms.Player, error)
	GetPlayerByUsername(ctx context.Context, username string) (*luckperms.Player, error)
}

// Service maintains the set of user-to-AuthMe links, the at-most-one-primary
// invariant, and the append-only history trail behind every mutation.
//
// All mutating operations run inside a single transaction; a failure anywhere
// rolls back every write including the history entry.
type Service struct {
	db      *gorm.DB
	bridge  AccountSource
	players PlayerSource
}

// NewService constructs a Service with its collaborators.
func NewService(db *gorm.DB, bridge AccountSource, players PlayerSource) *Service {
	return &Service{db: db, bridge: bridge, players: players}
}

// BindOptions carries optional inputs for Bind.
type BindOptions struct {
	OperatorID *uint64 // Acting user, nil for system actions.
	SourceIP   string  // Source IP of the request, recorded in history.
	SetPrimary bool    // Promote the binding to primary in the same transaction.
	Reason     string  // Optional operator-supplied reason.
}

// Bind links userID to the AuthMe account named by identifier.
//
// The identifier must resolve through the bridge; a miss is ErrNotFound and a
// bridge failure is ErrExternalUnavailable. Re-binding an already linked
// username refreshes the stored realname and status in place instead of
// creating a duplicate row. The binding does not become primary unless
// opts.SetPrimary is set.
func (s *Service) Bind(ctx context.Context, userID uint64, identifier string, opts BindOptions) (*models.AuthmeBinding, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrValidation)
	}

	if errUser := s.ensureUserExists(ctx, userID); errUser != nil {
		return nil, errUser
	}

	if s.bridge == nil {
		return nil, fmt.Errorf("%w: authme not configured", ErrExternalUnavailable)
	}
	account, errResolve := s.bridge.GetAccount(ctx, identifier)
	if errResolve != nil {
		return nil, fmt.Errorf("%w: authme lookup: %v", ErrExternalUnavailable, errResolve)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: authme account %q", ErrNotFound, identifier)
	}

	usernameLower := strings.ToLower(account.Username)
	now := time.Now().UTC()

	var binding models.AuthmeBinding
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created := false
		errFind := tx.Where("user_id = ? AND authme_username_lower = ?", userID, usernameLower).
			First(&binding).Error
		switch {
		case errFind == nil:
			binding.AuthmeUsername = account.Username
			binding.AuthmeRealname = account.Realname
			// A re-bind resets the status; a suspension does not survive it.
			binding.Status = models.BindingStatusActive
			if errSave := tx.Save(&binding).Error; errSave != nil {
				return fmt.Errorf("refresh binding: %w", errSave)
			}
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			created = true
			binding = models.AuthmeBinding{
				UserID:              userID,
				AuthmeUsername:      account.Username,
				AuthmeUsernameLower: usernameLower,
				AuthmeRealname:      account.Realname,
				BoundAt:             now,
				Status:              models.BindingStatusActive,
			}
			if errCreate := tx.Create(&binding).Error; errCreate != nil {
				return fmt.Errorf("create binding: %w", errCreate)
			}
		default:
			return fmt.Errorf("find binding: %w", errFind)
		}

		payload := map[string]any{"created": created}
		if opts.SourceIP != "" {
			payload["source_ip"] = opts.SourceIP
		}
		if errHist := appendHistory(tx, &binding, opts.OperatorID, models.BindingActionManualEntry, opts.Reason, payload); errHist != nil {
			return errHist
		}

		if opts.SetPrimary {
			if errPrimary := s.setPrimaryTx(tx, userID, binding.ID, opts.OperatorID, false); errPrimary != nil {
				return errPrimary
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &binding, nil
}

// SetPrimary promotes a binding to be the user's primary binding.
//
// When a different binding was previously primary, a PRIMARY_UNSET entry for
// it is appended alongside the PRIMARY_SET entry for the new one, both in the
// same transaction so readers never observe zero or two primaries.
func (s *Service) SetPrimary(ctx context.Context, userID, bindingID uint64, operatorID *uint64) (*models.AuthmeBinding, error) {
	var binding models.AuthmeBinding
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errSet := s.setPrimaryTx(tx, userID, bindingID, operatorID, false); errSet != nil {
			return errSet
		}
		return tx.First(&binding, bindingID).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &binding, nil
}

// Unbind deletes a binding, clearing every reference that pointed to it.
//
// When the deleted binding was primary, the user's remaining binding with the
// earliest BoundAt is promoted in the same transaction, recorded as a
// PRIMARY_SET entry with auto=true. A user left with no bindings simply has
// no primary.
func (s *Service) Unbind(ctx context.Context, userID, bindingID uint64, operatorID *uint64, reason string) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, errProfile := lockProfile(tx, userID)
		if errProfile != nil {
			return errProfile
		}

		var binding models.AuthmeBinding
		if errFind := tx.Where("id = ? AND user_id = ?", bindingID, userID).First(&binding).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: binding %d", ErrNotFound, bindingID)
			}
			return fmt.Errorf("find binding: %w", errFind)
		}

		wasPrimary := profile.PrimaryAuthmeBindingID != nil && *profile.PrimaryAuthmeBindingID == binding.ID
		if wasPrimary {
			if errClear := updateProfilePrimary(tx, profile, nil); errClear != nil {
				return errClear
			}
		}

		if errDetach := tx.Model(&models.MinecraftProfile{}).
			Where("authme_binding_id = ?", binding.ID).
			Update("authme_binding_id", nil).Error; errDetach != nil {
			return fmt.Errorf("detach minecraft profiles: %w", errDetach)
		}

		payload := map[string]any{"was_primary": wasPrimary}
		if errHist := appendHistory(tx, &binding, operatorID, models.BindingActionUnbind, reason, payload); errHist != nil {
			return errHist
		}

		if errDelete := tx.Delete(&models.AuthmeBinding{}, binding.ID).Error; errDelete != nil {
			return fmt.Errorf("delete binding: %w", errDelete)
		}

		if errTouch := touchUser(tx, userID); errTouch != nil {
			return errTouch
		}

		if wasPrimary {
			if errReassign := s.reassignPrimaryTx(tx, userID, operatorID); errReassign != nil {
				return errReassign
			}
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}

	log.WithFields(log.Fields{"user_id": userID, "binding_id": bindingID}).
		Info("authme binding removed")
	return nil
}

// UpdatePatch carries the partial update applied by Update. Nil fields are
// left untouched.
type UpdatePatch struct {
	AuthmeRealname *string        // Override the stored realname.
	Status         *string        // New binding status.
	Notes          *string        // Operator notes.
	Metadata       datatypes.JSON // Replacement metadata payload.
	TargetUserID   *uint64        // Transfer ownership to this user.
	Primary        *bool          // Explicit primary toggle.
	Reason         string         // Optional operator-supplied reason.
}

// Update applies a partial update and optionally transfers ownership.
//
// A transfer clears the old owner's primary pointer and nickname
// cross-references before the owner changes, and never promotes the binding
// under the new owner unless Primary is explicitly set in the same call.
func (s *Service) Update(ctx context.Context, userID, bindingID uint64, patch UpdatePatch, operatorID *uint64) (*models.AuthmeBinding, error) {
	if patch.Status != nil && !models.ValidBindingStatus(*patch.Status) {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, *patch.Status)
	}

	var binding models.AuthmeBinding
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ? AND user_id = ?", bindingID, userID).First(&binding).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: binding %d", ErrNotFound, bindingID)
			}
			return fmt.Errorf("find binding: %w", errFind)
		}

		ownerID := userID
		if patch.TargetUserID != nil && *patch.TargetUserID != userID {
			newOwner, errTransfer := s.transferTx(tx, &binding, *patch.TargetUserID, operatorID, patch.Reason)
			if errTransfer != nil {
				return errTransfer
			}
			ownerID = newOwner
		}

		changed := map[string]any{}
		if patch.AuthmeRealname != nil {
			binding.AuthmeRealname = strings.TrimSpace(*patch.AuthmeRealname)
			changed["authme_realname"] = binding.AuthmeRealname
		}
		if patch.Status != nil {
			binding.Status = *patch.Status
			changed["status"] = binding.Status
		}
		if patch.Notes != nil {
			binding.Notes = *patch.Notes
			changed["notes"] = true
		}
		if patch.Metadata != nil {
			binding.Metadata = patch.Metadata
			changed["metadata"] = true
		}
		if errSave := tx.Save(&binding).Error; errSave != nil {
			return fmt.Errorf("save binding: %w", errSave)
		}

		if len(changed) > 0 {
			if errHist := appendHistory(tx, &binding, operatorID, models.BindingActionUpdate, patch.Reason, changed); errHist != nil {
				return errHist
			}
		}

		if patch.Primary != nil {
			if *patch.Primary {
				if errSet := s.setPrimaryTx(tx, ownerID, binding.ID, operatorID, false); errSet != nil {
					return errSet
				}
			} else {
				if errUnset := s.unsetPrimaryTx(tx, ownerID, binding.ID, operatorID); errUnset != nil {
					return errUnset
				}
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &binding, nil
}

// ListBindings returns a user's bindings ordered by BoundAt.
func (s *Service) ListBindings(ctx context.Context, userID uint64) ([]models.AuthmeBinding, error) {
	var bindings []models.AuthmeBinding
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("bound_at ASC, id ASC").
		Find(&bindings).Error; errFind != nil {
		return nil, fmt.Errorf("list bindings: %w", errFind)
	}
	return bindings, nil
}

// PrimaryBindingID returns the user's primary binding ID, nil when none.
func (s *Service) PrimaryBindingID(ctx context.Context, userID uint64) (*uint64, error) {
	var profile models.Profile
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find profile: %w", errFind)
	}
	return profile.PrimaryAuthmeBindingID, nil
}

// History returns a page of a user's binding history, newest first.
func (s *Service) History(ctx context.Context, userID uint64, page, pageSize int) ([]models.AuthmeBindingHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := s.db.WithContext(ctx).Model(&models.AuthmeBindingHistory{}).Where("user_id = ?", userID)

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("count history: %w", errCount)
	}

	var entries []models.AuthmeBindingHistory
	if errFind := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error; errFind != nil {
		return nil, 0, fmt.Errorf("list history: %w", errFind)
	}
	return entries, total, nil
}

// setPrimaryTx points the owner's profile at bindingID inside tx.
func (s *Service) setPrimaryTx(tx *gorm.DB, userID, bindingID uint64, operatorID *uint64, auto bool) error {
	profile, errProfile := lockProfile(tx, userID)
	if errProfile != nil {
		return errProfile
	}

	var binding models.AuthmeBinding
	if errFind := tx.Where("id = ? AND user_id = ?", bindingID, userID).First(&binding).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: binding %d", ErrNotFound, bindingID)
		}
		return fmt.Errorf("find binding: %w", errFind)
	}

	previousID := profile.PrimaryAuthmeBindingID
	if previousID != nil && *previousID == binding.ID {
		return nil
	}

	if previousID != nil {
		var previous models.AuthmeBinding
		if errPrev := tx.First(&previous, *previousID).Error; errPrev == nil {
			if errHist := appendHistory(tx, &previous, operatorID, models.BindingActionPrimaryUnset, "", nil); errHist != nil {
				return errHist
			}
		} else if !errors.Is(errPrev, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find previous primary: %w", errPrev)
		}
	}

	if errSet := updateProfilePrimary(tx, profile, &binding.ID); errSet != nil {
		return errSet
	}

	var payload map[string]any
	if auto {
		payload = map[string]any{"auto": true}
	}
	return appendHistory(tx, &binding, operatorID, models.BindingActionPrimarySet, "", payload)
}

// unsetPrimaryTx clears the primary pointer when it targets bindingID.
func (s *Service) unsetPrimaryTx(tx *gorm.DB, userID, bindingID uint64, operatorID *uint64) error {
	profile, errProfile := lockProfile(tx, userID)
	if errProfile != nil {
		return errProfile
	}
	if profile.PrimaryAuthmeBindingID == nil || *profile.PrimaryAuthmeBindingID != bindingID {
		return nil
	}

	var binding models.AuthmeBinding
	if errFind := tx.Where("id = ? AND user_id = ?", bindingID, userID).First(&binding).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: binding %d", ErrNotFound, bindingID)
		}
		return fmt.Errorf("find binding: %w", errFind)
	}

	if errClear := updateProfilePrimary(tx, profile, nil); errClear != nil {
		return errClear
	}
	return appendHistory(tx, &binding, operatorID, models.BindingActionPrimaryUnset, "", nil)
}

// reassignPrimaryTx promotes the earliest-bound remaining binding, if any.
func (s *Service) reassignPrimaryTx(tx *gorm.DB, userID uint64, operatorID *uint64) error {
	var next models.AuthmeBinding
	errFind := tx.Where("user_id = ?", userID).
		Order("bound_at ASC, id ASC").
		First(&next).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("find reassignment candidate: %w", errFind)
	}
	return s.setPrimaryTx(tx, userID, next.ID, operatorID, true)
}

// transferTx moves a binding to a new owner, clearing old-owner references.
func (s *Service) transferTx(tx *gorm.DB, binding *models.AuthmeBinding, targetUserID uint64, operatorID *uint64, reason string) (uint64, error) {
	var target models.User
	if errFind := tx.First(&target, targetUserID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: target user %d", ErrNotFound, targetUserID)
		}
		return 0, fmt.Errorf("find target user: %w", errFind)
	}

	fromUserID := binding.UserID

	profile, errProfile := lockProfile(tx, fromUserID)
	if errProfile != nil {
		return 0, errProfile
	}
	if profile.PrimaryAuthmeBindingID != nil && *profile.PrimaryAuthmeBindingID == binding.ID {
		if errClear := updateProfilePrimary(tx, profile, nil); errClear != nil {
			return 0, errClear
		}
	}

	if errDetach := tx.Model(&models.MinecraftProfile{}).
		Where("user_id = ? AND authme_binding_id = ?", fromUserID, binding.ID).
		Update("authme_binding_id", nil).Error; errDetach != nil {
		return 0, fmt.Errorf("detach minecraft profiles: %w", errDetach)
	}

	binding.UserID = targetUserID
	if errSave := tx.Save(binding).Error; errSave != nil {
		return 0, fmt.Errorf("reassign binding owner: %w", errSave)
	}

	payload := map[string]any{"from_user_id": fromUserID, "to_user_id": targetUserID}
	if errHist := appendHistory(tx, binding, operatorID, models.BindingActionTransfer, reason, payload); errHist != nil {
		return 0, errHist
	}
	return targetUserID, nil
}

// ensureUserExists maps a missing user to ErrNotFound.
func (s *Service) ensureUserExists(ctx context.Context, userID uint64) error {
	var user models.User
	if errFind := s.db.WithContext(ctx).Select("id").First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return fmt.Errorf("find user: %w", errFind)
	}
	return nil
}

// lockProfile loads the user's profile row for update, creating it on first
// use. Locking the row serializes concurrent primary mutations on one user.
func lockProfile(tx *gorm.DB, userID uint64) (*models.Profile, error) {
	var profile models.Profile
	errFind := forUpdate(tx).Where("user_id = ?", userID).First(&profile).Error
	if errFind == nil {
		return &profile, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock profile: %w", errFind)
	}

	profile = models.Profile{UserID: userID}
	if errCreate := tx.Create(&profile).Error; errCreate != nil {
		return nil, fmt.Errorf("create profile: %w", errCreate)
	}
	return &profile, nil
}

// updateProfilePrimary writes the primary pointer, keeping the in-memory
// profile in sync with the row.
func updateProfilePrimary(tx *gorm.DB, profile *models.Profile, bindingID *uint64) error {
	if errUpdate := tx.Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Update("primary_authme_binding_id", bindingID).Error; errUpdate != nil {
		return fmt.Errorf("update primary pointer: %w", errUpdate)
	}
	profile.PrimaryAuthmeBindingID = bindingID
	return nil
}

// appendHistory writes one immutable audit row snapshotting the binding.
func appendHistory(tx *gorm.DB, binding *models.AuthmeBinding, operatorID *uint64, action, reason string, payload map[string]any) error {
	entry := models.AuthmeBindingHistory{
		BindingID:      &binding.ID,
		UserID:         binding.UserID,
		OperatorID:     operatorID,
		AuthmeUsername: binding.AuthmeUsername,
		AuthmeRealname: binding.AuthmeRealname,
		AuthmeUUID:     binding.AuthmeUUID,
		Action:         action,
		Reason:         reason,
	}
	if payload != nil {
		data, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			return fmt.Errorf("marshal history payload: %w", errMarshal)
		}
		entry.Payload = datatypes.JSON(data)
	}
	if errCreate := tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("append history: %w", errCreate)
	}
	return nil
}

// touchUser bumps the owning user's updated_at as a lifecycle marker.
func touchUser(tx *gorm.DB, userID uint64) error {
	if errUpdate := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("updated_at", time.Now().UTC()).Error; errUpdate != nil {
		return fmt.Errorf("touch user: %w", errUpdate)
	}
	return nil
}

// forUpdate applies a row lock where the dialect supports one. SQLite has no
// row locks; its single-writer model covers the same races.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if dbutil.DialectName(tx) == dbutil.DialectSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
