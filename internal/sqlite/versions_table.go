package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/folio/pkg/types"
)

const versionColumns = `version_id, object_type, object_id, object_site_id, object_name,
    version_xml, binary_data_xml, version_number, version_comment,
    modified_by, modified_when, deleted_by, deleted_when, site_binding_ids`

// GetVersion retrieves a version entry by ID.
func (s *Store) GetVersion(ctx context.Context, versionID int64) (*types.VersionHistoryEntry, error) {
	if versionID <= 0 {
		return nil, types.ErrInvalidID
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM version_history WHERE version_id = ?", versionID)
	v, err := hydrateVersion(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("version %d", versionID))
	}
	return v, nil
}

// GetLatestVersion returns the entry with the highest version_id.
func (s *Store) GetLatestVersion(ctx context.Context, objectType string, objectID int64) (*types.VersionHistoryEntry, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+versionColumns+` FROM version_history
         WHERE object_type = ? AND object_id = ?
         ORDER BY version_id DESC LIMIT 1`,
		objectType, objectID)
	v, err := hydrateVersion(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("latest version of %s %d", objectType, objectID))
	}
	return v, nil
}

// ListVersions returns the object's history, newest first.
func (s *Store) ListVersions(ctx context.Context, objectType string, objectID int64) ([]*types.VersionHistoryEntry, error) {
	return s.queryVersions(ctx,
		"SELECT "+versionColumns+` FROM version_history
         WHERE object_type = ? AND object_id = ?
         ORDER BY version_id DESC`,
		objectType, objectID)
}

// CountVersions returns the number of entries the object owns.
func (s *Store) CountVersions(ctx context.Context, objectType string, objectID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM version_history WHERE object_type = ? AND object_id = ?",
		objectType, objectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting versions of %s %d: %w", objectType, objectID, err)
	}
	return n, nil
}

// ListVersionIDs returns major or minor entry IDs, newest first. Major
// entries are those whose number ends in ".0".
func (s *Store) ListVersionIDs(ctx context.Context, objectType string, objectID int64, major bool) ([]int64, error) {
	cond := "version_number LIKE '%.0'"
	if !major {
		cond = "version_number NOT LIKE '%.0'"
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT version_id FROM version_history
         WHERE object_type = ? AND object_id = ? AND `+cond+`
         ORDER BY version_id DESC`,
		objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("listing version IDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning version ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version IDs: %w", err)
	}
	return ids, nil
}

// InsertVersion persists a new entry and assigns its VersionID.
func (s *Store) InsertVersion(ctx context.Context, v *types.VersionHistoryEntry) error {
	if v.ObjectType == "" || v.ObjectID <= 0 {
		return types.ErrInvalidData
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO version_history (object_type, object_id, object_site_id, object_name,
            version_xml, binary_data_xml, version_number, version_comment,
            modified_by, modified_when, deleted_by, deleted_when, site_binding_ids)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ObjectType, v.ObjectID, v.ObjectSiteID, v.ObjectName,
		v.VersionXML, v.VersionBinaryDataXML, v.VersionNumber, v.VersionComment,
		v.ModifiedByUserID, formatTime(v.ModifiedWhen), v.DeletedByUserID, formatTime(v.DeletedWhen),
		v.VersionSiteBindingIDs,
	)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading version ID: %w", err)
	}
	v.VersionID = id
	return nil
}

// UpdateVersion rewrites an existing entry in place.
func (s *Store) UpdateVersion(ctx context.Context, v *types.VersionHistoryEntry) error {
	if v.VersionID <= 0 {
		return types.ErrInvalidID
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE version_history SET object_type = ?, object_id = ?, object_site_id = ?, object_name = ?,
            version_xml = ?, binary_data_xml = ?, version_number = ?, version_comment = ?,
            modified_by = ?, modified_when = ?, deleted_by = ?, deleted_when = ?, site_binding_ids = ?
         WHERE version_id = ?`,
		v.ObjectType, v.ObjectID, v.ObjectSiteID, v.ObjectName,
		v.VersionXML, v.VersionBinaryDataXML, v.VersionNumber, v.VersionComment,
		v.ModifiedByUserID, formatTime(v.ModifiedWhen), v.DeletedByUserID, formatTime(v.DeletedWhen),
		v.VersionSiteBindingIDs, v.VersionID,
	)
	if err != nil {
		return fmt.Errorf("updating version %d: %w", v.VersionID, err)
	}
	return requireAffected(res, fmt.Sprintf("version %d", v.VersionID))
}

// DeleteVersion removes one entry. A remaining check-out reference makes the
// foreign key reject the delete.
func (s *Store) DeleteVersion(ctx context.Context, versionID int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM version_history WHERE version_id = ?", versionID)
	if err != nil {
		return fmt.Errorf("deleting version %d: %w", versionID, err)
	}
	return requireAffected(res, fmt.Sprintf("version %d", versionID))
}

// DeleteObjectVersions removes the whole history of an object, detaching
// check-out references first.
func (s *Store) DeleteObjectVersions(ctx context.Context, objectType string, objectID int64) (int64, error) {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE objects SET checked_out_version_id = NULL
         WHERE checked_out_version_id IN (
             SELECT version_id FROM version_history WHERE object_type = ? AND object_id = ?)`,
		objectType, objectID); err != nil {
		return 0, fmt.Errorf("detaching check-out references: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM version_history WHERE object_type = ? AND object_id = ?", objectType, objectID)
	if err != nil {
		return 0, fmt.Errorf("deleting history of %s %d: %w", objectType, objectID, err)
	}
	return res.RowsAffected()
}

// ReparentVersions moves history rows to a new object ID.
func (s *Store) ReparentVersions(ctx context.Context, objectType string, oldID, newID int64) (int64, error) {
	if oldID == newID {
		return 0, nil
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE version_history SET object_id = ? WHERE object_type = ? AND object_id = ?",
		newID, objectType, oldID)
	if err != nil {
		return 0, fmt.Errorf("reparenting history of %s %d: %w", objectType, oldID, err)
	}
	return res.RowsAffected()
}

// ListRecycleBin returns deleted entries, newest first.
func (s *Store) ListRecycleBin(ctx context.Context, siteID int64) ([]*types.VersionHistoryEntry, error) {
	query := "SELECT " + versionColumns + " FROM version_history WHERE deleted_when != ''"
	var args []any
	if siteID >= 0 {
		query += " AND object_site_id = ?"
		args = append(args, siteID)
	}
	query += " ORDER BY version_id DESC"
	return s.queryVersions(ctx, query, args...)
}

// ListVersionedObjects returns every object that owns history.
func (s *Store) ListVersionedObjects(ctx context.Context) ([]types.ObjectRef, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT object_type, object_id, MAX(object_site_id) FROM version_history
         GROUP BY object_type, object_id ORDER BY object_type, object_id`)
	if err != nil {
		return nil, fmt.Errorf("listing versioned objects: %w", err)
	}
	defer rows.Close()

	var refs []types.ObjectRef
	for rows.Next() {
		var r types.ObjectRef
		if err := rows.Scan(&r.ObjectType, &r.ObjectID, &r.SiteID); err != nil {
			return nil, fmt.Errorf("scanning versioned object: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versioned objects: %w", err)
	}
	return refs, nil
}

func (s *Store) queryVersions(ctx context.Context, query string, args ...any) ([]*types.VersionHistoryEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var results []*types.VersionHistoryEntry
	for rows.Next() {
		v, err := hydrateVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating version: %w", err)
		}
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	return results, nil
}

// hydrateVersion converts a row into a *types.VersionHistoryEntry.
func hydrateVersion(row rowScanner) (*types.VersionHistoryEntry, error) {
	var v types.VersionHistoryEntry
	var modifiedWhen, deletedWhen string
	if err := row.Scan(&v.VersionID, &v.ObjectType, &v.ObjectID, &v.ObjectSiteID, &v.ObjectName,
		&v.VersionXML, &v.VersionBinaryDataXML, &v.VersionNumber, &v.VersionComment,
		&v.ModifiedByUserID, &modifiedWhen, &v.DeletedByUserID, &deletedWhen, &v.VersionSiteBindingIDs); err != nil {
		return nil, err
	}
	var err error
	if v.ModifiedWhen, err = parseTime(modifiedWhen); err != nil {
		return nil, err
	}
	if v.DeletedWhen, err = parseTime(deletedWhen); err != nil {
		return nil, err
	}
	return &v, nil
}
