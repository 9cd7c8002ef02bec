// Package types defines the entities, store interfaces, and standard errors
// shared by the Folio versioning and workflow engine.
//
// Version history entries, versioned objects, workflow steps, transitions,
// users and roles live here together with the Repository contracts the
// sqlite backend implements and the versioning and workflow packages consume.
package types
