package types

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"sort"
)

// Snapshot is the serialized form of a versioned object stored in
// VersionHistoryEntry.VersionXML. Children are captured recursively so a
// rollback with processChildren can rebuild them.
type Snapshot struct {
	XMLName    xml.Name        `xml:"object"`
	ObjectType string          `xml:"type,attr"`
	ObjectID   int64           `xml:"id,attr"`
	SiteID     int64           `xml:"site,attr"`
	ParentID   int64           `xml:"parent,attr,omitempty"`
	GUID       string          `xml:"guid,attr,omitempty"`
	Name       string          `xml:"name"`
	Fields     []SnapshotField `xml:"fields>field"`
	Children   []Snapshot      `xml:"children>object,omitempty"`
}

// SnapshotField is one named field value.
type SnapshotField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// binarySnapshot is the serialized form of VersionedObject.BinaryData.
type binarySnapshot struct {
	XMLName xml.Name     `xml:"binary"`
	Items   []binaryItem `xml:"item"`
}

type binaryItem struct {
	Name string `xml:"name,attr"`
	Data string `xml:",chardata"`
}

// NewSnapshot captures obj and its children. Binary data is serialized
// separately by MarshalBinaryData.
func NewSnapshot(obj *VersionedObject, children []*VersionedObject) *Snapshot {
	s := snapshotOf(obj)
	for _, c := range children {
		s.Children = append(s.Children, *snapshotOf(c))
	}
	return s
}

func snapshotOf(obj *VersionedObject) *Snapshot {
	s := &Snapshot{
		ObjectType: obj.ObjectType,
		ObjectID:   obj.ObjectID,
		SiteID:     obj.SiteID,
		ParentID:   obj.ParentID,
		GUID:       obj.GUID,
		Name:       obj.Name,
	}
	for _, name := range obj.FieldNames() {
		s.Fields = append(s.Fields, SnapshotField{Name: name, Value: obj.Fields[name]})
	}
	return s
}

// Object rebuilds the live object described by the snapshot, without
// children, binary data, or checkout state.
func (s *Snapshot) Object() *VersionedObject {
	obj := &VersionedObject{
		ObjectType: s.ObjectType,
		ObjectID:   s.ObjectID,
		SiteID:     s.SiteID,
		ParentID:   s.ParentID,
		GUID:       s.GUID,
		Name:       s.Name,
		Fields:     make(map[string]string, len(s.Fields)),
	}
	for _, f := range s.Fields {
		obj.Fields[f.Name] = f.Value
	}
	return obj
}

// MarshalSnapshot serializes a snapshot to XML.
func MarshalSnapshot(s *Snapshot) (string, error) {
	data, err := xml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot: %w", err)
	}
	return string(data), nil
}

// UnmarshalSnapshot parses VersionXML.
func UnmarshalSnapshot(data string) (*Snapshot, error) {
	var s Snapshot
	if err := xml.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &s, nil
}

// RewriteSnapshotObjectID returns data with the root object ID replaced.
// Children keep their IDs but are re-pointed at the new parent.
func RewriteSnapshotObjectID(data string, objectID int64) (string, error) {
	s, err := UnmarshalSnapshot(data)
	if err != nil {
		return "", err
	}
	if s.ObjectID == objectID {
		return data, nil
	}
	s.ObjectID = objectID
	for i := range s.Children {
		s.Children[i].ParentID = objectID
	}
	return MarshalSnapshot(s)
}

// MarshalBinaryData serializes named blobs as base64 inside XML. An empty map
// serializes to the empty string.
func MarshalBinaryData(data map[string][]byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)

	var bs binarySnapshot
	for _, name := range names {
		bs.Items = append(bs.Items, binaryItem{
			Name: name,
			Data: base64.StdEncoding.EncodeToString(data[name]),
		})
	}
	out, err := xml.Marshal(&bs)
	if err != nil {
		return "", fmt.Errorf("marshaling binary data: %w", err)
	}
	return string(out), nil
}

// UnmarshalBinaryData is the inverse of MarshalBinaryData.
func UnmarshalBinaryData(data string) (map[string][]byte, error) {
	if data == "" {
		return nil, nil
	}
	var bs binarySnapshot
	if err := xml.Unmarshal([]byte(data), &bs); err != nil {
		return nil, fmt.Errorf("%w: binary data: %v", ErrInvalidSnapshot, err)
	}
	out := make(map[string][]byte, len(bs.Items))
	for _, item := range bs.Items {
		raw, err := base64.StdEncoding.DecodeString(item.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: binary item %q: %v", ErrInvalidSnapshot, item.Name, err)
		}
		out[item.Name] = raw
	}
	return out, nil
}
