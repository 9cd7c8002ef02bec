package types

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	obj := &VersionedObject{
		ObjectType: ObjectTypePage,
		ObjectID:   42,
		SiteID:     2,
		Name:       "Home",
		GUID:       "0190a5c6-0000-7000-8000-000000000000",
		Fields:     map[string]string{"title": "Welcome <home>", "body": "  spaced  "},
	}
	child := &VersionedObject{
		ObjectType: ObjectTypePage,
		ObjectID:   43,
		ParentID:   42,
		SiteID:     2,
		Name:       "Teaser",
		Fields:     map[string]string{"text": "hi"},
	}

	data, err := MarshalSnapshot(NewSnapshot(obj, []*VersionedObject{child}))
	require.NoError(t, err)

	s, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	got := s.Object()
	assert.Equal(t, obj.ObjectType, got.ObjectType)
	assert.Equal(t, obj.ObjectID, got.ObjectID)
	assert.Equal(t, obj.SiteID, got.SiteID)
	assert.Equal(t, obj.GUID, got.GUID)
	assert.Equal(t, obj.Name, got.Name)
	assert.Equal(t, obj.Fields, got.Fields)
	require.Len(t, s.Children, 1)
	assert.Equal(t, "Teaser", s.Children[0].Name)
	assert.Equal(t, int64(42), s.Children[0].ParentID)
}

func TestRewriteSnapshotObjectID(t *testing.T) {
	obj := &VersionedObject{ObjectType: ObjectTypePage, ObjectID: 5, Name: "A"}
	child := &VersionedObject{ObjectType: ObjectTypePage, ObjectID: 6, ParentID: 5, Name: "B"}
	data, err := MarshalSnapshot(NewSnapshot(obj, []*VersionedObject{child}))
	require.NoError(t, err)

	same, err := RewriteSnapshotObjectID(data, 5)
	require.NoError(t, err)
	assert.Equal(t, data, same)

	rewritten, err := RewriteSnapshotObjectID(data, 77)
	require.NoError(t, err)
	s, err := UnmarshalSnapshot(rewritten)
	require.NoError(t, err)
	assert.Equal(t, int64(77), s.ObjectID)
	assert.Equal(t, int64(77), s.Children[0].ParentID)
}

func TestUnmarshalSnapshotInvalid(t *testing.T) {
	_, err := UnmarshalSnapshot("<object")
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))
}

func TestBinaryDataRoundTrip(t *testing.T) {
	in := map[string][]byte{"logo.png": {0x89, 0x50, 0x4e, 0x47}, "empty": {}}
	data, err := MarshalBinaryData(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "<binary>"))

	out, err := UnmarshalBinaryData(data)
	require.NoError(t, err)
	assert.Equal(t, in["logo.png"], out["logo.png"])
	assert.Len(t, out["empty"], 0)

	empty, err := MarshalBinaryData(nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	none, err := UnmarshalBinaryData("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
