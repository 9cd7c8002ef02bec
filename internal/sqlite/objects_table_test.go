package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/types"
)

func TestObjects_SaveAssignsIDAndGUID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj := &types.VersionedObject{
		ObjectType:   types.ObjectTypeTemplate,
		Name:         "layout",
		Fields:       map[string]string{"body": "<div/>"},
		BinaryData:   map[string][]byte{"thumb.png": {0x89, 0x50}},
		SiteBindings: []int64{3, 1},
	}
	require.NoError(t, s.SaveObject(ctx, obj))
	require.NotZero(t, obj.ObjectID)

	parsed, err := uuid.Parse(obj.GUID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	got, err := s.GetObject(ctx, obj.ObjectType, obj.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, "<div/>", got.Fields["body"])
	assert.Equal(t, []byte{0x89, 0x50}, got.BinaryData["thumb.png"])
	assert.Equal(t, []int64{1, 3}, got.SiteBindings)
	assert.False(t, got.Checkout.IsCheckedOut())
}

func TestObjects_UpdateKeepsCheckout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj := &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "home"}
	require.NoError(t, s.SaveObject(ctx, obj))
	require.NoError(t, s.SetCheckout(ctx, obj.ObjectType, obj.ObjectID, types.CheckoutState{CheckedOutByUserID: 4}))

	obj.Name = "landing"
	obj.Checkout = types.CheckoutState{}
	require.NoError(t, s.SaveObject(ctx, obj))

	got, err := s.GetObject(ctx, obj.ObjectType, obj.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, "landing", got.Name)
	assert.EqualValues(t, 4, got.Checkout.CheckedOutByUserID)
}

func TestObjects_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveObject(context.Background(), &types.VersionedObject{
		ObjectType: types.ObjectTypePage, ObjectID: 77, Name: "ghost",
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestObjects_DeleteCascadesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "parent"}
	require.NoError(t, s.SaveObject(ctx, parent))
	child := &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "child", ParentID: parent.ObjectID}
	require.NoError(t, s.SaveObject(ctx, child))

	children, err := s.ListChildren(ctx, parent.ObjectID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	require.NoError(t, s.DeleteObject(ctx, parent.ObjectType, parent.ObjectID))
	_, err = s.GetObject(ctx, child.ObjectType, child.ObjectID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, s.DeleteObject(ctx, parent.ObjectType, parent.ObjectID), types.ErrNotFound)
}

func TestObjects_ApplySnapshotUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj := &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "home", Fields: map[string]string{"title": "Old"}}
	require.NoError(t, s.SaveObject(ctx, obj))
	child := &types.VersionedObject{ObjectType: types.ObjectTypePage, Name: "about", ParentID: obj.ObjectID}
	require.NoError(t, s.SaveObject(ctx, child))

	snapObj := *obj
	snapObj.Fields = map[string]string{"title": "New"}
	xmlData, err := types.MarshalSnapshot(types.NewSnapshot(&snapObj, []*types.VersionedObject{
		{ObjectType: types.ObjectTypePage, Name: "contact", ParentID: obj.ObjectID},
	}))
	require.NoError(t, err)

	got, err := s.ApplySnapshot(ctx, types.ApplyRequest{VersionXML: xmlData, ProcessChildren: true})
	require.NoError(t, err)
	assert.Equal(t, obj.ObjectID, got.ObjectID)
	assert.Equal(t, "New", got.Fields["title"])

	children, err := s.ListChildren(ctx, obj.ObjectID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "contact", children[0].Name)
}

func TestObjects_ApplySnapshotRecreatesMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gone := &types.VersionedObject{
		ObjectType: types.ObjectTypeTemplate, ObjectID: 41, SiteID: 2, Name: "old", GUID: "g-1",
		Fields: map[string]string{"body": "x"},
	}
	xmlData, err := types.MarshalSnapshot(types.NewSnapshot(gone, nil))
	require.NoError(t, err)
	binXML, err := types.MarshalBinaryData(map[string][]byte{"a": []byte("b")})
	require.NoError(t, err)

	got, err := s.ApplySnapshot(ctx, types.ApplyRequest{
		VersionXML:   xmlData,
		BinaryXML:    binXML,
		SiteID:       5,
		SiteBindings: []int64{5, 6},
	})
	require.NoError(t, err)
	assert.NotEqual(t, int64(41), got.ObjectID)
	assert.EqualValues(t, 5, got.SiteID)
	assert.Equal(t, "g-1", got.GUID)
	assert.Equal(t, []byte("b"), got.BinaryData["a"])
	assert.Equal(t, []int64{5, 6}, got.SiteBindings)
}

func TestObjects_ApplySnapshotRejectsGarbage(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ApplySnapshot(context.Background(), types.ApplyRequest{VersionXML: "not xml"})
	assert.ErrorIs(t, err, types.ErrInvalidSnapshot)
}

func TestMergeBindings(t *testing.T) {
	tests := []struct {
		name           string
		current, extra []int64
		want           []int64
	}{
		{"nil extra keeps current", []int64{1}, nil, []int64{1}},
		{"union without duplicates", []int64{1, 2}, []int64{2, 3}, []int64{1, 2, 3}},
		{"zero ignored", nil, []int64{0, 4}, []int64{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeBindings(tt.current, tt.extra))
		})
	}
}
