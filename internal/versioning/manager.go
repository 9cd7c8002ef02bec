// Package versioning implements the object version manager: version
// creation with coalescing, rollback, restore, the recycle bin, check-out and
// check-in, and retention of old versions.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/folio/internal/metrics"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Event log source for this package.
const eventSource = "ObjectVersionManager"

// Config carries the manager's collaborators. Zero fields get defaults:
// the built-in type registry, SettingDefaults, a no-op event log, no
// license gate, no metrics and the wall clock.
type Config struct {
	Types    *types.TypeRegistry
	Settings types.SettingsProvider
	Events   types.EventLog
	Gate     types.FeatureGate
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Manager orchestrates the version history of live objects.
type Manager struct {
	repo     types.Repository
	types    *types.TypeRegistry
	settings types.SettingsProvider
	events   types.EventLog
	gate     types.FeatureGate
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewManager creates a manager over repo.
func NewManager(repo types.Repository, cfg Config) *Manager {
	m := &Manager{
		repo:     repo,
		types:    cfg.Types,
		settings: cfg.Settings,
		events:   cfg.Events,
		gate:     cfg.Gate,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if m.types == nil {
		m.types = types.NewTypeRegistry()
	}
	if m.settings == nil {
		m.settings = types.StaticSettings{}
	}
	if m.events == nil {
		m.events = types.NopEventLog{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Types returns the object type registry.
func (m *Manager) Types() *types.TypeRegistry {
	return m.types
}

// CreateVersion records the current state of obj. Recent edits coalesce
// into the latest minor entry and a checked-out object writes into its
// working version; force always appends a new entry. Retention runs after a
// new entry is appended. Failures are written to the event log and returned.
func (m *Manager) CreateVersion(ctx context.Context, obj *types.VersionedObject, userID int64, force bool) (*types.VersionHistoryEntry, error) {
	defer m.metrics.ObserveOperation("create_version", time.Now())
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}

	var entry *types.VersionHistoryEntry
	err := m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		entry, err = m.createVersion(ctx, r, obj, userID, force, true, "")
		return err
	})
	if err != nil {
		m.events.LogException(eventSource, "CREATEVERSION", err)
		return nil, err
	}
	return entry, nil
}

// createVersion decides and writes one version inside r. A non-empty number
// replaces the computed number of an appended entry before retention runs.
// An entry appended while the object is checked out becomes its working
// version.
func (m *Manager) createVersion(ctx context.Context, r types.Repository, obj *types.VersionedObject,
	userID int64, force, allowPromote bool, number string) (*types.VersionHistoryEntry, error) {
	info, err := m.types.Lookup(obj.ObjectType)
	if err != nil {
		return nil, err
	}
	if !info.SupportsVersioning {
		return nil, fmt.Errorf("%w: %s", types.ErrVersioningUnsupported, obj.ObjectType)
	}
	if obj.ObjectID <= 0 {
		return nil, types.ErrInvalidID
	}

	latest, err := r.GetLatestVersion(ctx, obj.ObjectType, obj.ObjectID)
	if errors.Is(err, types.ErrNotFound) {
		latest, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	siteName, err := m.siteName(ctx, r, obj.SiteID)
	if err != nil {
		return nil, err
	}

	checkout := obj.Checkout
	if cur, err := r.GetObject(ctx, obj.ObjectType, obj.ObjectID); err == nil {
		checkout = cur.Checkout
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	in := decisionInput{
		Latest:          latest,
		Checkout:        checkout,
		Force:           force,
		AllowPromote:    allowPromote,
		Now:             m.now(),
		UseLastInterval: time.Duration(m.settings.Int(siteName, types.SettingUseLastVersionInterval)) * time.Minute,
		PromoteInterval: time.Duration(m.settings.Int(siteName, types.SettingPromoteToMajorInterval)) * time.Hour,
	}
	if latest != nil && latest.IsMajor() {
		n, err := r.CountVersions(ctx, obj.ObjectType, obj.ObjectID)
		if err != nil {
			return nil, err
		}
		in.OnlyEntry = n == 1
	}
	d := decideVersion(in)
	if number != "" {
		d.Number = number
	}

	versionXML, binaryXML, err := m.capture(ctx, r, obj)
	if err != nil {
		return nil, err
	}

	if d.Kind == reuseEntry {
		entry, err := r.GetVersion(ctx, d.ReuseID)
		if err != nil {
			return nil, fmt.Errorf("loading version %d to coalesce: %w", d.ReuseID, err)
		}
		fillEntry(entry, obj, versionXML, binaryXML, userID, in.Now)
		if err := r.UpdateVersion(ctx, entry); err != nil {
			return nil, err
		}
		m.metrics.RecordVersion("coalesced")
		return entry, nil
	}

	if d.PromoteTo != "" {
		latest.VersionNumber = d.PromoteTo
		if err := r.UpdateVersion(ctx, latest); err != nil {
			return nil, fmt.Errorf("promoting version %d: %w", latest.VersionID, err)
		}
		m.metrics.RecordVersion("promoted")
	}

	entry := &types.VersionHistoryEntry{
		ObjectType:    obj.ObjectType,
		ObjectID:      obj.ObjectID,
		VersionNumber: d.Number,
	}
	fillEntry(entry, obj, versionXML, binaryXML, userID, in.Now)
	if err := r.InsertVersion(ctx, entry); err != nil {
		return nil, err
	}
	m.metrics.RecordVersion("created")

	if checkout.IsCheckedOut() {
		checkout.CheckedOutVersionID = entry.VersionID
		if err := r.SetCheckout(ctx, obj.ObjectType, obj.ObjectID, checkout); err != nil {
			return nil, err
		}
		obj.Checkout = checkout
	}

	if _, err := m.deleteOlderVersions(ctx, r, obj.ObjectType, obj.ObjectID, siteName); err != nil {
		return nil, err
	}
	return entry, nil
}

// capture serializes obj and its children.
func (m *Manager) capture(ctx context.Context, r types.Repository, obj *types.VersionedObject) (string, string, error) {
	var children []*types.VersionedObject
	if obj.ObjectID > 0 {
		var err error
		if children, err = r.ListChildren(ctx, obj.ObjectID); err != nil {
			return "", "", err
		}
	}
	versionXML, err := types.MarshalSnapshot(types.NewSnapshot(obj, children))
	if err != nil {
		return "", "", err
	}
	binaryXML, err := types.MarshalBinaryData(obj.BinaryData)
	if err != nil {
		return "", "", err
	}
	return versionXML, binaryXML, nil
}

func fillEntry(e *types.VersionHistoryEntry, obj *types.VersionedObject, versionXML, binaryXML string, userID int64, now time.Time) {
	e.ObjectSiteID = obj.SiteID
	e.ObjectName = obj.Name
	e.VersionXML = versionXML
	e.VersionBinaryDataXML = binaryXML
	e.ModifiedByUserID = userID
	e.ModifiedWhen = now
	e.VersionSiteBindingIDs = types.FormatSiteBindingIDs(obj.SiteBindings)
}

// siteName resolves the site used for settings lookups; 0 is global.
func (m *Manager) siteName(ctx context.Context, r types.Repository, siteID int64) (string, error) {
	if siteID <= 0 {
		return "", nil
	}
	site, err := r.GetSite(ctx, siteID)
	if errors.Is(err, types.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return site.SiteName, nil
}

// RollbackVersion replays versionID onto the live object. With
// createNewVersion a new entry is recorded carrying the rolled-back-to
// number. Requires a user in ctx.
func (m *Manager) RollbackVersion(ctx context.Context, versionID int64, processChildren, createNewVersion bool) (*types.VersionedObject, error) {
	defer m.metrics.ObserveOperation("rollback", time.Now())
	user, err := types.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}

	var obj *types.VersionedObject
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		obj, err = m.rollback(ctx, r, versionID, processChildren, createNewVersion, user.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (m *Manager) rollback(ctx context.Context, r types.Repository, versionID int64,
	processChildren, createNewVersion bool, userID int64) (*types.VersionedObject, error) {
	v, err := r.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("rolling back to version %d: %w", versionID, err)
	}

	versionXML, err := types.RewriteSnapshotObjectID(v.VersionXML, v.ObjectID)
	if err != nil {
		return nil, err
	}
	obj, err := r.ApplySnapshot(ctx, types.ApplyRequest{
		VersionXML:      versionXML,
		BinaryXML:       v.VersionBinaryDataXML,
		ProcessChildren: processChildren,
	})
	if err != nil {
		return nil, fmt.Errorf("applying version %d: %w", versionID, err)
	}
	if obj.ObjectID != v.ObjectID {
		if _, err := r.ReparentVersions(ctx, v.ObjectType, v.ObjectID, obj.ObjectID); err != nil {
			return nil, err
		}
	}

	if createNewVersion {
		if _, err := m.createVersion(ctx, r, obj, userID, true, false, v.VersionNumber); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// RestoreObject brings a recycle-bin entry back to life. For types bound to
// sites, a positive siteID restores only the binding to that site;
// otherwise it moves the object to siteID. Older history is re-pointed at
// the restored object's new ID.
func (m *Manager) RestoreObject(ctx context.Context, versionID, siteID int64, processChildren bool) (*types.VersionedObject, error) {
	defer m.metrics.ObserveOperation("restore", time.Now())
	user, err := types.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}

	var obj *types.VersionedObject
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		v, err := r.GetVersion(ctx, versionID)
		if err != nil {
			return fmt.Errorf("restoring version %d: %w", versionID, err)
		}
		info, err := m.types.Lookup(v.ObjectType)
		if err != nil {
			return err
		}

		req := types.ApplyRequest{
			VersionXML:      v.VersionXML,
			BinaryXML:       v.VersionBinaryDataXML,
			ProcessChildren: processChildren,
		}
		switch {
		case info.SupportsSiteBindings && siteID > 0:
			req.SiteBindings = []int64{siteID}
		case info.SupportsSiteBindings:
			req.SiteBindings = v.SiteBindings()
		case siteID > 0:
			req.SiteID = siteID
		}

		if obj, err = r.ApplySnapshot(ctx, req); err != nil {
			return fmt.Errorf("applying version %d: %w", versionID, err)
		}
		if obj.ObjectID != v.ObjectID {
			if _, err := r.ReparentVersions(ctx, v.ObjectType, v.ObjectID, obj.ObjectID); err != nil {
				return err
			}
		}

		if !info.SupportsVersioning {
			return m.destroyVersion(ctx, r, v.VersionID)
		}

		versionXML, binaryXML, err := m.capture(ctx, r, obj)
		if err != nil {
			return err
		}
		v.ClearDeleted()
		v.ObjectID = obj.ObjectID
		fillEntry(v, obj, versionXML, binaryXML, user.UserID, m.now())
		return r.UpdateVersion(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	m.events.LogEvent(types.Event{
		EventType: types.EventInformation,
		Source:    eventSource,
		Code:      "RESTOREOBJECT",
		Message:   fmt.Sprintf("restored %s %q from version %d", obj.ObjectType, obj.Name, versionID),
		UserID:    user.UserID,
		UserName:  user.UserName,
		SiteID:    obj.SiteID,
	})
	return obj, nil
}

// EnsureVersion returns the object's latest entry, creating a baseline
// entry when it has no history.
func (m *Manager) EnsureVersion(ctx context.Context, obj *types.VersionedObject) (*types.VersionHistoryEntry, error) {
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}
	var entry *types.VersionHistoryEntry
	err := m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		entry, err = m.ensureVersion(ctx, r, obj, actingUserID(ctx))
		return err
	})
	return entry, err
}

func (m *Manager) ensureVersion(ctx context.Context, r types.Repository, obj *types.VersionedObject, userID int64) (*types.VersionHistoryEntry, error) {
	latest, err := r.GetLatestVersion(ctx, obj.ObjectType, obj.ObjectID)
	if err == nil {
		return latest, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	return m.createVersion(ctx, r, obj, userID, true, false, "")
}

// EnsureDeletedVersion records a recycle-bin entry for obj. With fromStore
// the state is reloaded from the object store first. Types without a
// recycle bin get no entry and a nil result.
func (m *Manager) EnsureDeletedVersion(ctx context.Context, obj *types.VersionedObject, fromStore bool) (*types.VersionHistoryEntry, error) {
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return nil, err
	}
	var entry *types.VersionHistoryEntry
	err := m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		entry, err = m.ensureDeletedVersion(ctx, r, obj, fromStore, actingUserID(ctx))
		return err
	})
	return entry, err
}

func (m *Manager) ensureDeletedVersion(ctx context.Context, r types.Repository, obj *types.VersionedObject,
	fromStore bool, userID int64) (*types.VersionHistoryEntry, error) {
	info, err := m.types.Lookup(obj.ObjectType)
	if err != nil {
		return nil, err
	}
	if !info.SupportsVersioning && !info.SupportsRecycleBin {
		return nil, nil
	}
	if fromStore {
		if obj, err = r.GetObject(ctx, obj.ObjectType, obj.ObjectID); err != nil {
			return nil, err
		}
	}

	latest, err := r.GetLatestVersion(ctx, obj.ObjectType, obj.ObjectID)
	switch {
	case err == nil && latest.IsDeleted():
		return latest, nil
	case err != nil && !errors.Is(err, types.ErrNotFound):
		return nil, err
	}

	var entry *types.VersionHistoryEntry
	if info.SupportsVersioning {
		if entry, err = m.createVersion(ctx, r, obj, userID, false, false, ""); err != nil {
			return nil, err
		}
	} else {
		versionXML, binaryXML, err := m.capture(ctx, r, obj)
		if err != nil {
			return nil, err
		}
		entry = &types.VersionHistoryEntry{
			ObjectType:    obj.ObjectType,
			ObjectID:      obj.ObjectID,
			VersionNumber: types.GetNewVersionNumber("", true),
		}
		fillEntry(entry, obj, versionXML, binaryXML, userID, m.now())
		if err := r.InsertVersion(ctx, entry); err != nil {
			return nil, err
		}
	}

	entry.DeletedByUserID = userID
	entry.DeletedWhen = m.now()
	if err := r.UpdateVersion(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveObject persists obj and records a version for versioned types,
// attributed to the user in ctx.
func (m *Manager) SaveObject(ctx context.Context, obj *types.VersionedObject) (*types.VersionHistoryEntry, error) {
	info, err := m.types.Lookup(obj.ObjectType)
	if err != nil {
		return nil, err
	}
	if info.SupportsVersioning {
		if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
			return nil, err
		}
	}

	var entry *types.VersionHistoryEntry
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		if err := r.SaveObject(ctx, obj); err != nil {
			return err
		}
		if !info.SupportsVersioning {
			return nil
		}
		var err error
		entry, err = m.createVersion(ctx, r, obj, actingUserID(ctx), false, true, "")
		return err
	})
	if err != nil {
		m.events.LogException(eventSource, "SAVEOBJECT", err)
		return nil, err
	}
	return entry, nil
}

// DeleteObject moves obj to the recycle bin and removes it from the object
// store in one transaction.
func (m *Manager) DeleteObject(ctx context.Context, obj *types.VersionedObject) (*types.VersionHistoryEntry, error) {
	user, err := types.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	info, err := m.types.Lookup(obj.ObjectType)
	if err != nil {
		return nil, err
	}
	if info.SupportsVersioning || info.SupportsRecycleBin {
		if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
			return nil, err
		}
	}
	var entry *types.VersionHistoryEntry
	err = m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		if entry, err = m.ensureDeletedVersion(ctx, r, obj, true, user.UserID); err != nil {
			return err
		}
		return r.DeleteObject(ctx, obj.ObjectType, obj.ObjectID)
	})
	if err != nil {
		return nil, err
	}
	m.events.LogEvent(types.Event{
		EventType: types.EventInformation,
		Source:    eventSource,
		Code:      "DELETEOBJECT",
		Message:   fmt.Sprintf("deleted %s %d", obj.ObjectType, obj.ObjectID),
		UserID:    user.UserID,
		UserName:  user.UserName,
		SiteID:    obj.SiteID,
	})
	return entry, nil
}

// DestroyVersion permanently removes one entry, detaching check-out
// references to it first.
func (m *Manager) DestroyVersion(ctx context.Context, versionID int64) error {
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return err
	}
	return m.repo.InTx(ctx, func(r types.Repository) error {
		return m.destroyVersion(ctx, r, versionID)
	})
}

func (m *Manager) destroyVersion(ctx context.Context, r types.Repository, versionID int64) error {
	if _, err := r.ClearCheckoutReferences(ctx, versionID); err != nil {
		return err
	}
	return r.DeleteVersion(ctx, versionID)
}

// DestroyObjectHistory removes every entry of an object and returns how
// many were removed.
func (m *Manager) DestroyObjectHistory(ctx context.Context, objectType string, objectID int64) (int64, error) {
	if err := types.CheckFeature(ctx, m.gate, types.FeatureObjectVersioning); err != nil {
		return 0, err
	}
	var n int64
	err := m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		n, err = r.DeleteObjectVersions(ctx, objectType, objectID)
		return err
	})
	return n, err
}

// ObjectHasVersions reports whether the object owns any history.
func (m *Manager) ObjectHasVersions(ctx context.Context, objectType string, objectID int64) (bool, error) {
	_, err := m.repo.GetLatestVersion(ctx, objectType, objectID)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetObjectHistory returns the object's entries, newest first.
func (m *Manager) GetObjectHistory(ctx context.Context, objectType string, objectID int64) ([]*types.VersionHistoryEntry, error) {
	return m.repo.ListVersions(ctx, objectType, objectID)
}

// GetVersion returns one entry.
func (m *Manager) GetVersion(ctx context.Context, versionID int64) (*types.VersionHistoryEntry, error) {
	return m.repo.GetVersion(ctx, versionID)
}

// GetLatestVersion returns the object's latest entry.
func (m *Manager) GetLatestVersion(ctx context.Context, objectType string, objectID int64) (*types.VersionHistoryEntry, error) {
	return m.repo.GetLatestVersion(ctx, objectType, objectID)
}

// GetRecycleBin lists deleted objects of a site; a negative siteID lists
// every site.
func (m *Manager) GetRecycleBin(ctx context.Context, siteID int64) ([]*types.VersionHistoryEntry, error) {
	return m.repo.ListRecycleBin(ctx, siteID)
}

func actingUserID(ctx context.Context) int64 {
	if u := types.UserFromContext(ctx); u != nil {
		return u.UserID
	}
	return 0
}
