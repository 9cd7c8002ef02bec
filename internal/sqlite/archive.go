package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// versionRecord is one line of a history archive.
type versionRecord struct {
	VersionID      int64  `json:"version_id"`
	ObjectType     string `json:"object_type"`
	ObjectID       int64  `json:"object_id"`
	ObjectSiteID   int64  `json:"object_site_id"`
	ObjectName     string `json:"object_name"`
	VersionXML     string `json:"version_xml"`
	BinaryDataXML  string `json:"binary_data_xml,omitempty"`
	VersionNumber  string `json:"version_number"`
	VersionComment string `json:"version_comment,omitempty"`
	ModifiedBy     int64  `json:"modified_by"`
	ModifiedWhen   string `json:"modified_when"`
	DeletedBy      int64  `json:"deleted_by,omitempty"`
	DeletedWhen    string `json:"deleted_when,omitempty"`
	SiteBindingIDs string `json:"site_binding_ids,omitempty"`
}

func toRecord(v *types.VersionHistoryEntry) versionRecord {
	return versionRecord{
		VersionID:      v.VersionID,
		ObjectType:     v.ObjectType,
		ObjectID:       v.ObjectID,
		ObjectSiteID:   v.ObjectSiteID,
		ObjectName:     v.ObjectName,
		VersionXML:     v.VersionXML,
		BinaryDataXML:  v.VersionBinaryDataXML,
		VersionNumber:  v.VersionNumber,
		VersionComment: v.VersionComment,
		ModifiedBy:     v.ModifiedByUserID,
		ModifiedWhen:   formatTime(v.ModifiedWhen),
		DeletedBy:      v.DeletedByUserID,
		DeletedWhen:    formatTime(v.DeletedWhen),
		SiteBindingIDs: v.VersionSiteBindingIDs,
	}
}

func (r versionRecord) entry() (*types.VersionHistoryEntry, error) {
	modified, err := parseTime(r.ModifiedWhen)
	if err != nil {
		return nil, err
	}
	deleted, err := parseTime(r.DeletedWhen)
	if err != nil {
		return nil, err
	}
	return &types.VersionHistoryEntry{
		ObjectType:            r.ObjectType,
		ObjectID:              r.ObjectID,
		ObjectSiteID:          r.ObjectSiteID,
		ObjectName:            r.ObjectName,
		VersionXML:            r.VersionXML,
		VersionBinaryDataXML:  r.BinaryDataXML,
		VersionNumber:         r.VersionNumber,
		VersionComment:        r.VersionComment,
		ModifiedByUserID:      r.ModifiedBy,
		ModifiedWhen:          modified,
		DeletedByUserID:       r.DeletedBy,
		DeletedWhen:           deleted,
		VersionSiteBindingIDs: r.SiteBindingIDs,
	}, nil
}

// ExportHistory writes version history as JSONL, oldest entry first. A nil
// ref exports every object's history. Returns the number of entries written.
func (s *Store) ExportHistory(ctx context.Context, path string, ref *types.ObjectRef) (int, error) {
	var refs []types.ObjectRef
	if ref != nil {
		refs = []types.ObjectRef{*ref}
	} else {
		var err error
		if refs, err = s.ListVersionedObjects(ctx); err != nil {
			return 0, err
		}
	}

	var lines []json.RawMessage
	for _, r := range refs {
		versions, err := s.ListVersions(ctx, r.ObjectType, r.ObjectID)
		if err != nil {
			return 0, err
		}
		for i := len(versions) - 1; i >= 0; i-- {
			line, err := json.Marshal(toRecord(versions[i]))
			if err != nil {
				return 0, fmt.Errorf("marshaling version %d: %w", versions[i].VersionID, err)
			}
			lines = append(lines, line)
		}
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	return len(lines), nil
}

// ImportHistory appends the entries of a JSONL archive in one transaction.
// Entries get new VersionIDs; malformed lines are skipped. Returns the
// number of entries imported.
func (s *Store) ImportHistory(ctx context.Context, path string) (int, error) {
	lines, err := readJSONL(path)
	if err != nil {
		return 0, err
	}

	imported := 0
	err = s.inTx(ctx, func(tx *Store) error {
		for _, line := range lines {
			var rec versionRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			v, err := rec.entry()
			if err != nil {
				continue
			}
			if err := tx.InsertVersion(ctx, v); err != nil {
				return fmt.Errorf("importing %s %d %s: %w", rec.ObjectType, rec.ObjectID, rec.VersionNumber, err)
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// readJSONL returns each non-empty, valid JSON line of a file.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL replaces path atomically: temp file, fsync, rename.
func writeJSONL(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(format string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
