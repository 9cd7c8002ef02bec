package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VersionHistoryEntry is one snapshot of a versioned object.
// The latest entry for (ObjectType, ObjectID) is the one with the highest
// VersionID. A recycle-bin entry has DeletedByUserID and DeletedWhen set.
type VersionHistoryEntry struct {
	VersionID    int64  // Surrogate key, assigned on insert.
	ObjectType   string // Object type discriminator.
	ObjectID     int64  // Owning object ID.
	ObjectSiteID int64  // 0 for global objects.
	ObjectName   string // Display name at version time.

	VersionXML           string // Serialized snapshot of the object's fields.
	VersionBinaryDataXML string // Serialized binary attachments (base64 in XML).

	VersionNumber  string // "major.minor", e.g. "1.0" or "0.3".
	VersionComment string

	ModifiedByUserID int64
	ModifiedWhen     time.Time
	DeletedByUserID  int64
	DeletedWhen      time.Time

	// VersionSiteBindingIDs is a semicolon-delimited list of site IDs, kept
	// for global objects so their site bindings can be restored.
	VersionSiteBindingIDs string
}

// IsDeleted reports whether the entry represents a recycle-bin object.
func (v *VersionHistoryEntry) IsDeleted() bool {
	return v.DeletedByUserID != 0 || !v.DeletedWhen.IsZero()
}

// IsMajor reports whether the entry carries a major version number.
func (v *VersionHistoryEntry) IsMajor() bool {
	return IsMajorVersion(v.VersionNumber)
}

// ClearDeleted resets the recycle-bin markers.
func (v *VersionHistoryEntry) ClearDeleted() {
	v.DeletedByUserID = 0
	v.DeletedWhen = time.Time{}
}

// SiteBindings parses VersionSiteBindingIDs. Malformed items are skipped.
func (v *VersionHistoryEntry) SiteBindings() []int64 {
	return ParseSiteBindingIDs(v.VersionSiteBindingIDs)
}

// ParseSiteBindingIDs parses a semicolon-delimited list of site IDs.
func ParseSiteBindingIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// FormatSiteBindingIDs is the inverse of ParseSiteBindingIDs.
func FormatSiteBindingIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return ";" + strings.Join(parts, ";") + ";"
}

// IsMajorVersion reports whether a version number has the form "x.0".
func IsMajorVersion(number string) bool {
	return strings.HasSuffix(strings.TrimSpace(number), ".0")
}

// GetNewVersionNumber returns the version number following old.
// A major bump turns "x.y" into "(x+1).0"; a minor bump into "x.(y+1)".
// An empty old number yields "1.0" for a major request and "0.1" for a minor
// one. A number that does not parse is returned unchanged.
func GetNewVersionNumber(old string, isMajor bool) string {
	old = strings.TrimSpace(old)
	if old == "" {
		if isMajor {
			return "1.0"
		}
		return "0.1"
	}

	major, minor, err := parseVersionNumber(old)
	if err != nil {
		return old
	}
	if isMajor {
		return fmt.Sprintf("%d.0", major+1)
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}

func parseVersionNumber(number string) (int, int, error) {
	majorStr, minorStr, ok := strings.Cut(number, ".")
	if !ok {
		return 0, 0, fmt.Errorf("version number %q: missing minor part", number)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("version number %q: %w", number, err)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("version number %q: %w", number, err)
	}
	if major < 0 || minor < 0 {
		return 0, 0, fmt.Errorf("version number %q: negative part", number)
	}
	return major, minor, nil
}
