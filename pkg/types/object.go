package types

import (
	"sort"
	"sync"
	"time"
)

// Built-in object types.
const (
	ObjectTypePage     = "cms.page"     // Site pages, versioned.
	ObjectTypeTemplate = "cms.template" // Global templates bound to sites, versioned.
	ObjectTypeSetting  = "cms.setting"  // Recycle bin only, no ongoing history.
)

// CheckoutState is the advisory edit lock carried by a versioned object.
// For versioned types CheckedOutVersionID is non-zero iff CheckedOutByUserID is.
type CheckoutState struct {
	CheckedOutByUserID  int64
	CheckedOutWhen      time.Time
	CheckedOutVersionID int64
}

// IsCheckedOut reports whether a user holds the check-out.
func (c CheckoutState) IsCheckedOut() bool {
	return c.CheckedOutByUserID != 0
}

// VersionedObject is a live record in the object store.
type VersionedObject struct {
	ObjectType string
	ObjectID   int64 // Assigned by the store on first save.
	SiteID     int64 // 0 for global objects.
	ParentID   int64 // 0 for root objects; children version with their parent.
	Name       string
	GUID       string // UUID v7.

	Fields     map[string]string
	BinaryData map[string][]byte

	Checkout CheckoutState

	// SiteBindings lists the sites a global object is bound to.
	SiteBindings []int64

	ModifiedWhen time.Time
}

// FieldNames returns the object's field names in sorted order.
func (o *VersionedObject) FieldNames() []string {
	names := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetField sets a field value, allocating the map if needed.
func (o *VersionedObject) SetField(name, value string) {
	if o.Fields == nil {
		o.Fields = make(map[string]string)
	}
	o.Fields[name] = value
}

// ObjectTypeInfo describes versioning capabilities of an object type.
type ObjectTypeInfo struct {
	Name                 string
	SupportsVersioning   bool // Ongoing version history.
	SupportsRecycleBin   bool // Deleted objects keep a restorable entry.
	SupportsSiteBindings bool // Global objects bound to sites.
}

// TypeRegistry maps object type names to their ObjectTypeInfo.
// It is safe for concurrent use.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]ObjectTypeInfo
}

// NewTypeRegistry returns a registry pre-populated with the built-in types.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]ObjectTypeInfo)}
	r.Register(ObjectTypeInfo{Name: ObjectTypePage, SupportsVersioning: true, SupportsRecycleBin: true})
	r.Register(ObjectTypeInfo{Name: ObjectTypeTemplate, SupportsVersioning: true, SupportsRecycleBin: true, SupportsSiteBindings: true})
	r.Register(ObjectTypeInfo{Name: ObjectTypeSetting, SupportsRecycleBin: true})
	return r
}

// Register adds or replaces a type.
func (r *TypeRegistry) Register(info ObjectTypeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[info.Name] = info
}

// Lookup returns the type info. Returns ErrUnknownObjectType if the type is
// not registered.
func (r *TypeRegistry) Lookup(name string) (ObjectTypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[name]
	if !ok {
		return ObjectTypeInfo{}, ErrUnknownObjectType
	}
	return info, nil
}

// Names returns the registered type names in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
