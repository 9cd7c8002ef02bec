package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/pkg/types"
)

const objectColumns = `object_id, object_type, site_id, parent_id, name, guid, fields, binary_data,
    checked_out_by, checked_out_when, COALESCE(checked_out_version_id, 0), modified_when`

// GetObject retrieves a live object with its site bindings.
func (s *Store) GetObject(ctx context.Context, objectType string, objectID int64) (*types.VersionedObject, error) {
	if objectID <= 0 {
		return nil, types.ErrInvalidID
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT "+objectColumns+" FROM objects WHERE object_type = ? AND object_id = ?",
		objectType, objectID)
	obj, err := hydrateObject(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("object %s %d", objectType, objectID))
	}
	if obj.SiteBindings, err = s.siteBindings(ctx, objectID); err != nil {
		return nil, err
	}
	return obj, nil
}

// SaveObject inserts or updates the object and syncs its site bindings.
// Checkout columns are only written by SetCheckout.
func (s *Store) SaveObject(ctx context.Context, obj *types.VersionedObject) error {
	if obj.ObjectType == "" || obj.Name == "" {
		return types.ErrInvalidData
	}

	fields, err := json.Marshal(obj.Fields)
	if err != nil {
		return fmt.Errorf("marshaling fields: %w", err)
	}
	binary := ""
	if len(obj.BinaryData) > 0 {
		raw, err := json.Marshal(obj.BinaryData)
		if err != nil {
			return fmt.Errorf("marshaling binary data: %w", err)
		}
		binary = string(raw)
	}
	obj.ModifiedWhen = time.Now().UTC()

	if obj.ObjectID == 0 {
		if obj.GUID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generating UUID v7: %w", err)
			}
			obj.GUID = id.String()
		}
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO objects (object_type, site_id, parent_id, name, guid, fields, binary_data, modified_when)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			obj.ObjectType, obj.SiteID, obj.ParentID, obj.Name, obj.GUID, string(fields), binary,
			formatTime(obj.ModifiedWhen))
		if err != nil {
			return fmt.Errorf("inserting object: %w", err)
		}
		if obj.ObjectID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading object ID: %w", err)
		}
	} else {
		res, err := s.q.ExecContext(ctx,
			`UPDATE objects SET site_id = ?, parent_id = ?, name = ?, guid = ?, fields = ?, binary_data = ?,
                modified_when = ?
             WHERE object_type = ? AND object_id = ?`,
			obj.SiteID, obj.ParentID, obj.Name, obj.GUID, string(fields), binary,
			formatTime(obj.ModifiedWhen), obj.ObjectType, obj.ObjectID)
		if err != nil {
			return fmt.Errorf("updating object %d: %w", obj.ObjectID, err)
		}
		if err := requireAffected(res, fmt.Sprintf("object %s %d", obj.ObjectType, obj.ObjectID)); err != nil {
			return err
		}
	}

	return s.syncSiteBindings(ctx, obj.ObjectID, obj.SiteBindings)
}

// DeleteObject removes the object and, recursively, its children.
func (s *Store) DeleteObject(ctx context.Context, objectType string, objectID int64) error {
	children, err := s.ListChildren(ctx, objectID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.DeleteObject(ctx, c.ObjectType, c.ObjectID); err != nil {
			return err
		}
	}
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM objects WHERE object_type = ? AND object_id = ?", objectType, objectID)
	if err != nil {
		return fmt.Errorf("deleting object %d: %w", objectID, err)
	}
	return requireAffected(res, fmt.Sprintf("object %s %d", objectType, objectID))
}

// ListChildren returns the direct children of an object ordered by ID.
func (s *Store) ListChildren(ctx context.Context, parentID int64) ([]*types.VersionedObject, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+objectColumns+" FROM objects WHERE parent_id = ? ORDER BY object_id", parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children of %d: %w", parentID, err)
	}
	defer rows.Close()

	var children []*types.VersionedObject
	for rows.Next() {
		obj, err := hydrateObject(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating object: %w", err)
		}
		children = append(children, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating children: %w", err)
	}
	return children, nil
}

// ListObjects returns objects of a type, optionally restricted to a site
// (siteID < 0 lists all).
func (s *Store) ListObjects(ctx context.Context, objectType string, siteID int64) ([]*types.VersionedObject, error) {
	query := "SELECT " + objectColumns + " FROM objects WHERE object_type = ? AND parent_id = 0"
	args := []any{objectType}
	if siteID >= 0 {
		query += " AND site_id = ?"
		args = append(args, siteID)
	}
	query += " ORDER BY object_id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var objs []*types.VersionedObject
	for rows.Next() {
		obj, err := hydrateObject(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating object: %w", err)
		}
		objs = append(objs, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating objects: %w", err)
	}
	return objs, nil
}

// SetCheckout writes the check-out columns.
func (s *Store) SetCheckout(ctx context.Context, objectType string, objectID int64, state types.CheckoutState) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE objects SET checked_out_by = ?, checked_out_when = ?, checked_out_version_id = ?
         WHERE object_type = ? AND object_id = ?`,
		state.CheckedOutByUserID, formatTime(state.CheckedOutWhen), nullableID(state.CheckedOutVersionID),
		objectType, objectID)
	if err != nil {
		return fmt.Errorf("setting check-out of %d: %w", objectID, err)
	}
	return requireAffected(res, fmt.Sprintf("object %s %d", objectType, objectID))
}

// ClearCheckoutReferences nulls check-out pointers to versionID.
func (s *Store) ClearCheckoutReferences(ctx context.Context, versionID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE objects SET checked_out_version_id = NULL WHERE checked_out_version_id = ?", versionID)
	if err != nil {
		return 0, fmt.Errorf("clearing check-out references to %d: %w", versionID, err)
	}
	return res.RowsAffected()
}

// ApplySnapshot replays a serialized object. An object that still exists is
// updated in place, keeping its check-out state and bindings; a missing one
// is inserted under a new ID. With ProcessChildren the current children are
// replaced by the snapshot's.
func (s *Store) ApplySnapshot(ctx context.Context, req types.ApplyRequest) (*types.VersionedObject, error) {
	snap, err := types.UnmarshalSnapshot(req.VersionXML)
	if err != nil {
		return nil, err
	}
	binary, err := types.UnmarshalBinaryData(req.BinaryXML)
	if err != nil {
		return nil, err
	}

	obj := snap.Object()
	obj.BinaryData = binary
	if req.SiteID != 0 {
		obj.SiteID = req.SiteID
	}

	existing, err := s.GetObject(ctx, obj.ObjectType, obj.ObjectID)
	switch {
	case err == nil:
		obj.SiteBindings = existing.SiteBindings
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrInvalidID):
		obj.ObjectID = 0
	default:
		return nil, err
	}
	obj.SiteBindings = mergeBindings(obj.SiteBindings, req.SiteBindings)

	if err := s.SaveObject(ctx, obj); err != nil {
		return nil, err
	}

	if req.ProcessChildren {
		current, err := s.ListChildren(ctx, obj.ObjectID)
		if err != nil {
			return nil, err
		}
		for _, c := range current {
			if err := s.DeleteObject(ctx, c.ObjectType, c.ObjectID); err != nil {
				return nil, err
			}
		}
		for i := range snap.Children {
			child := snap.Children[i].Object()
			child.ObjectID = 0
			child.ParentID = obj.ObjectID
			if err := s.SaveObject(ctx, child); err != nil {
				return nil, fmt.Errorf("restoring child %q: %w", child.Name, err)
			}
		}
	}

	return s.GetObject(ctx, obj.ObjectType, obj.ObjectID)
}

func (s *Store) siteBindings(ctx context.Context, objectID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT site_id FROM object_site_bindings WHERE object_id = ? ORDER BY site_id", objectID)
	if err != nil {
		return nil, fmt.Errorf("loading site bindings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning site binding: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) syncSiteBindings(ctx context.Context, objectID int64, siteIDs []int64) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM object_site_bindings WHERE object_id = ?", objectID); err != nil {
		return fmt.Errorf("clearing site bindings: %w", err)
	}
	for _, siteID := range siteIDs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT OR IGNORE INTO object_site_bindings (object_id, site_id) VALUES (?, ?)",
			objectID, siteID); err != nil {
			return fmt.Errorf("binding object %d to site %d: %w", objectID, siteID, err)
		}
	}
	return nil
}

// hydrateObject converts a row into a *types.VersionedObject.
func hydrateObject(row rowScanner) (*types.VersionedObject, error) {
	var o types.VersionedObject
	var fields, binary, checkedOutWhen, modifiedWhen string
	if err := row.Scan(&o.ObjectID, &o.ObjectType, &o.SiteID, &o.ParentID, &o.Name, &o.GUID,
		&fields, &binary, &o.Checkout.CheckedOutByUserID, &checkedOutWhen,
		&o.Checkout.CheckedOutVersionID, &modifiedWhen); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &o.Fields); err != nil {
		return nil, fmt.Errorf("parsing object fields: %w", err)
	}
	if o.Fields == nil {
		o.Fields = make(map[string]string)
	}
	if binary != "" {
		if err := json.Unmarshal([]byte(binary), &o.BinaryData); err != nil {
			return nil, fmt.Errorf("parsing object binary data: %w", err)
		}
	}
	var err error
	if o.Checkout.CheckedOutWhen, err = parseTime(checkedOutWhen); err != nil {
		return nil, err
	}
	if o.ModifiedWhen, err = parseTime(modifiedWhen); err != nil {
		return nil, err
	}
	return &o, nil
}

// mergeBindings returns the union of current and extra, keeping order.
func mergeBindings(current, extra []int64) []int64 {
	if extra == nil {
		return current
	}
	seen := mapset.NewThreadUnsafeSet[int64]()
	out := make([]int64, 0, len(current)+len(extra))
	for _, id := range append(append([]int64{}, current...), extra...) {
		if id == 0 || !seen.Add(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
