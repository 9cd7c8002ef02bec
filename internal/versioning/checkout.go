package versioning

import (
	"context"
	"errors"
	"time"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// CheckOut locks obj for the user in ctx. Versioned types get a baseline
// entry if they have none and a new working version that absorbs every
// edit until check-in.
func (m *Manager) CheckOut(ctx context.Context, obj *types.VersionedObject) error {
	defer m.metrics.ObserveOperation("checkout", time.Now())
	user, err := types.RequireUser(ctx)
	if err != nil {
		return err
	}
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return err
	}
	info, err := m.types.Lookup(obj.ObjectType)
	if err != nil {
		return err
	}

	var state types.CheckoutState
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		cur, err := r.GetObject(ctx, obj.ObjectType, obj.ObjectID)
		if err != nil {
			return err
		}
		if cur.Checkout.IsCheckedOut() {
			return &types.VersioningError{Op: "checkout", ObjectType: obj.ObjectType, ObjectID: obj.ObjectID, Err: types.ErrAlreadyCheckedOut}
		}

		state = types.CheckoutState{CheckedOutByUserID: user.UserID, CheckedOutWhen: m.now()}
		if err := r.SetCheckout(ctx, cur.ObjectType, cur.ObjectID, state); err != nil {
			return err
		}
		if !info.SupportsVersioning {
			return nil
		}

		if _, err := m.ensureVersion(ctx, r, cur, user.UserID); err != nil {
			return err
		}
		working, err := m.createVersion(ctx, r, cur, user.UserID, true, false, "")
		if err != nil {
			return err
		}
		state.CheckedOutVersionID = working.VersionID
		return nil
	})
	if err != nil {
		return err
	}
	obj.Checkout = state
	m.metrics.RecordCheckout("checkout")
	return nil
}

// UndoCheckOut discards the working version and rolls obj back to the
// entry that preceded the check-out. Only the check-out owner or a global
// admin may undo. Returns the reloaded object.
func (m *Manager) UndoCheckOut(ctx context.Context, obj *types.VersionedObject) (*types.VersionedObject, error) {
	defer m.metrics.ObserveOperation("undo_checkout", time.Now())
	user, err := types.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}

	var reloaded *types.VersionedObject
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		cur, err := r.GetObject(ctx, obj.ObjectType, obj.ObjectID)
		if err != nil {
			return err
		}
		if !cur.Checkout.IsCheckedOut() {
			return &types.VersioningError{Op: "undo checkout", ObjectType: obj.ObjectType, ObjectID: obj.ObjectID, Err: types.ErrNotCheckedOut}
		}
		if cur.Checkout.CheckedOutByUserID != user.UserID && !user.IsGlobalAdmin() {
			return &types.VersioningError{Op: "undo checkout", ObjectType: obj.ObjectType, ObjectID: obj.ObjectID, Err: types.ErrNotCheckoutOwner}
		}

		working := cur.Checkout.CheckedOutVersionID
		if err := r.SetCheckout(ctx, cur.ObjectType, cur.ObjectID, types.CheckoutState{}); err != nil {
			return err
		}
		if working != 0 {
			if err := m.destroyVersion(ctx, r, working); err != nil {
				return err
			}
		}

		latest, err := r.GetLatestVersion(ctx, cur.ObjectType, cur.ObjectID)
		switch {
		case errors.Is(err, types.ErrNotFound):
		case err != nil:
			return err
		default:
			if _, err := m.rollback(ctx, r, latest.VersionID, true, false, user.UserID); err != nil {
				return err
			}
		}

		reloaded, err = r.GetObject(ctx, cur.ObjectType, cur.ObjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	*obj = *reloaded
	m.metrics.RecordCheckout("undo")
	return reloaded, nil
}

// CheckIn releases the user's lock on obj. A non-empty versionNumber or
// comment is written to the latest entry. Returns that entry, or nil when
// nothing was written to history.
func (m *Manager) CheckIn(ctx context.Context, obj *types.VersionedObject, versionNumber, comment string) (*types.VersionHistoryEntry, error) {
	defer m.metrics.ObserveOperation("checkin", time.Now())
	user, err := types.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}
	info, err := m.types.Lookup(obj.ObjectType)
	if err != nil {
		return nil, err
	}

	var entry *types.VersionHistoryEntry
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		cur, err := r.GetObject(ctx, obj.ObjectType, obj.ObjectID)
		if err != nil {
			return err
		}
		if !cur.Checkout.IsCheckedOut() {
			return &types.VersioningError{Op: "checkin", ObjectType: obj.ObjectType, ObjectID: obj.ObjectID, Err: types.ErrNotCheckedOut}
		}
		if cur.Checkout.CheckedOutByUserID != user.UserID {
			return &types.VersioningError{Op: "checkin", ObjectType: obj.ObjectType, ObjectID: obj.ObjectID, Err: types.ErrNotCheckoutOwner}
		}

		if err := r.SetCheckout(ctx, cur.ObjectType, cur.ObjectID, types.CheckoutState{}); err != nil {
			return err
		}
		cur.Checkout = types.CheckoutState{}
		if !info.SupportsVersioning || (versionNumber == "" && comment == "") {
			return nil
		}

		if entry, err = m.ensureVersion(ctx, r, cur, user.UserID); err != nil {
			return err
		}
		if versionNumber != "" {
			entry.VersionNumber = versionNumber
		}
		if comment != "" {
			entry.VersionComment = comment
		}
		return r.UpdateVersion(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	obj.Checkout = types.CheckoutState{}
	m.metrics.RecordCheckout("checkin")
	return entry, nil
}
