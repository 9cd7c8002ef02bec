// Package sqlite implements the SQLite backend for Folio: version history,
// the live object store, workflows, users and the event log.
package sqlite

// Schema DDL for all tables. Statements are idempotent so Attach can run them
// against an existing database.
const (
	createSites = `CREATE TABLE IF NOT EXISTS sites (
    site_id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_name TEXT NOT NULL UNIQUE
);`

	createObjects = `CREATE TABLE IF NOT EXISTS objects (
    object_id INTEGER PRIMARY KEY AUTOINCREMENT,
    object_type TEXT NOT NULL,
    site_id INTEGER NOT NULL DEFAULT 0,
    parent_id INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL,
    guid TEXT NOT NULL,
    fields TEXT NOT NULL,
    binary_data TEXT NOT NULL DEFAULT '',
    checked_out_by INTEGER NOT NULL DEFAULT 0,
    checked_out_when TEXT NOT NULL DEFAULT '',
    checked_out_version_id INTEGER,
    modified_when TEXT NOT NULL,
    FOREIGN KEY (checked_out_version_id) REFERENCES version_history(version_id)
);`

	createObjectSiteBindings = `CREATE TABLE IF NOT EXISTS object_site_bindings (
    object_id INTEGER NOT NULL,
    site_id INTEGER NOT NULL,
    PRIMARY KEY (object_id, site_id),
    FOREIGN KEY (object_id) REFERENCES objects(object_id) ON DELETE CASCADE
);`

	createVersionHistory = `CREATE TABLE IF NOT EXISTS version_history (
    version_id INTEGER PRIMARY KEY AUTOINCREMENT,
    object_type TEXT NOT NULL,
    object_id INTEGER NOT NULL,
    object_site_id INTEGER NOT NULL DEFAULT 0,
    object_name TEXT NOT NULL DEFAULT '',
    version_xml TEXT NOT NULL,
    binary_data_xml TEXT NOT NULL DEFAULT '',
    version_number TEXT NOT NULL,
    version_comment TEXT NOT NULL DEFAULT '',
    modified_by INTEGER NOT NULL DEFAULT 0,
    modified_when TEXT NOT NULL,
    deleted_by INTEGER NOT NULL DEFAULT 0,
    deleted_when TEXT NOT NULL DEFAULT '',
    site_binding_ids TEXT NOT NULL DEFAULT ''
);`

	createUsers = `CREATE TABLE IF NOT EXISTS users (
    user_id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_name TEXT NOT NULL UNIQUE,
    privilege INTEGER NOT NULL DEFAULT 0
);`

	createUserPermissions = `CREATE TABLE IF NOT EXISTS user_permissions (
    user_id INTEGER NOT NULL,
    resource TEXT NOT NULL,
    permission TEXT NOT NULL,
    PRIMARY KEY (user_id, resource, permission),
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);`

	createRoles = `CREATE TABLE IF NOT EXISTS roles (
    role_id INTEGER PRIMARY KEY AUTOINCREMENT,
    role_name TEXT NOT NULL,
    site_id INTEGER NOT NULL DEFAULT 0,
    UNIQUE (role_name, site_id)
);`

	createUserRoles = `CREATE TABLE IF NOT EXISTS user_roles (
    user_id INTEGER NOT NULL,
    role_id INTEGER NOT NULL,
    PRIMARY KEY (user_id, role_id),
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
    FOREIGN KEY (role_id) REFERENCES roles(role_id) ON DELETE CASCADE
);`

	createWorkflows = `CREATE TABLE IF NOT EXISTS workflows (
    workflow_id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    basic INTEGER NOT NULL DEFAULT 0
);`

	createSteps = `CREATE TABLE IF NOT EXISTS workflow_steps (
    step_id INTEGER PRIMARY KEY AUTOINCREMENT,
    workflow_id INTEGER NOT NULL,
    step_name TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    step_type INTEGER NOT NULL,
    step_order INTEGER NOT NULL DEFAULT 0,
    definition TEXT NOT NULL DEFAULT '{}',
    users_security INTEGER NOT NULL DEFAULT 0,
    roles_security INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id) ON DELETE CASCADE
);`

	createTransitions = `CREATE TABLE IF NOT EXISTS workflow_transitions (
    transition_id INTEGER PRIMARY KEY AUTOINCREMENT,
    start_step_id INTEGER NOT NULL,
    end_step_id INTEGER NOT NULL,
    workflow_id INTEGER NOT NULL,
    source_point_guid TEXT NOT NULL DEFAULT '',
    transition_type TEXT NOT NULL,
    FOREIGN KEY (start_step_id) REFERENCES workflow_steps(step_id) ON DELETE CASCADE,
    FOREIGN KEY (end_step_id) REFERENCES workflow_steps(step_id) ON DELETE CASCADE
);`

	createStepUsers = `CREATE TABLE IF NOT EXISTS workflow_step_users (
    step_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    source_point_guid TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (step_id, user_id, source_point_guid),
    FOREIGN KEY (step_id) REFERENCES workflow_steps(step_id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);`

	createStepRoles = `CREATE TABLE IF NOT EXISTS workflow_step_roles (
    step_id INTEGER NOT NULL,
    role_id INTEGER NOT NULL,
    source_point_guid TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (step_id, role_id, source_point_guid),
    FOREIGN KEY (step_id) REFERENCES workflow_steps(step_id) ON DELETE CASCADE,
    FOREIGN KEY (role_id) REFERENCES roles(role_id) ON DELETE CASCADE
);`

	createEventLog = `CREATE TABLE IF NOT EXISTS event_log (
    event_id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    source TEXT NOT NULL,
    code TEXT NOT NULL,
    message TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    user_id INTEGER NOT NULL DEFAULT 0,
    user_name TEXT NOT NULL DEFAULT '',
    site_id INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxObjectsType          = `CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(object_type, object_id);`
	idxObjectsParent        = `CREATE INDEX IF NOT EXISTS idx_objects_parent ON objects(parent_id);`
	idxObjectsCheckout      = `CREATE INDEX IF NOT EXISTS idx_objects_checkout_version ON objects(checked_out_version_id);`
	idxVersionHistoryObject = `CREATE INDEX IF NOT EXISTS idx_version_history_object ON version_history(object_type, object_id, version_id);`
	idxVersionHistoryDelete = `CREATE INDEX IF NOT EXISTS idx_version_history_deleted ON version_history(deleted_by, object_site_id);`
	idxStepsWorkflow        = `CREATE INDEX IF NOT EXISTS idx_steps_workflow ON workflow_steps(workflow_id, step_order);`
	idxTransitionsStart     = `CREATE INDEX IF NOT EXISTS idx_transitions_start ON workflow_transitions(start_step_id, source_point_guid);`
	idxTransitionsWorkflow  = `CREATE INDEX IF NOT EXISTS idx_transitions_workflow ON workflow_transitions(workflow_id);`
	idxStepUsersUser        = `CREATE INDEX IF NOT EXISTS idx_step_users_user ON workflow_step_users(user_id);`
	idxUserRolesRole        = `CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role_id);`
	idxEventLogCreated      = `CREATE INDEX IF NOT EXISTS idx_event_log_created ON event_log(created_at);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createSites,
	createVersionHistory,
	createObjects,
	createObjectSiteBindings,
	createUsers,
	createUserPermissions,
	createRoles,
	createUserRoles,
	createWorkflows,
	createSteps,
	createTransitions,
	createStepUsers,
	createStepRoles,
	createEventLog,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxObjectsType,
	idxObjectsParent,
	idxObjectsCheckout,
	idxVersionHistoryObject,
	idxVersionHistoryDelete,
	idxStepsWorkflow,
	idxTransitionsStart,
	idxTransitionsWorkflow,
	idxStepUsersUser,
	idxUserRolesRole,
	idxEventLogCreated,
}
