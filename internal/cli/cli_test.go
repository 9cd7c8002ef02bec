package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/license"
	"github.com/mesh-intelligence/folio/internal/settings"
	"github.com/mesh-intelligence/folio/pkg/types"
)

type cliEnv struct {
	t         *testing.T
	configDir string
	dataDir   string
}

func newCLIEnv(t *testing.T, config string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	e := &cliEnv{t: t, configDir: filepath.Join(dir, "config"), dataDir: filepath.Join(dir, "data")}
	require.NoError(t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte("backend: sqlite\n"+config), 0o644))
	return e
}

func (e *cliEnv) run(args ...string) (stdout, stderr string, code int) {
	e.t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	code = run(root, append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...), &errOut)
	return out.String(), errOut.String(), code
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, errOut, code := e.run(args...)
	if code != exitSuccess {
		e.t.Fatalf("folio %v: exit %d\nstderr: %s", args, code, errOut)
	}
	return out
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"not found", fmt.Errorf("loading: %w", types.ErrNotFound), exitUserError},
		{"versioning", &types.VersioningError{Op: "checkin", Err: types.ErrNotCheckedOut}, exitUserError},
		{"license", &types.LicenseError{Feature: types.FeatureWorkflow}, exitUserError},
		{"usage", usagef("invalid step ID %q", "x"), exitUserError},
		{"duplicate transition", types.ErrDuplicateTransition, exitUserError},
		{"storage", errors.New("disk I/O error"), exitSysError},
		{"detached", types.ErrBackendDetached, exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestVersionAndInit(t *testing.T) {
	e := newCLIEnv(t, "")

	out := e.mustRun("version")
	assert.Contains(t, out, "folio v"+Version)

	out = e.mustRun("init")
	assert.Contains(t, out, "Folio initialized")
	_, err := os.Stat(filepath.Join(e.dataDir, "folio.db"))
	assert.NoError(t, err)
}

func TestInit_WritesConfigWithDataDir(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, "config")
	dataDir := filepath.Join(dir, "data")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	code := run(root, []string{"--config-dir", configDir, "--data-dir", dataDir, "init"}, &bytes.Buffer{})
	require.Equal(t, exitSuccess, code)

	assert.Equal(t, dataDir, loadDataDirFromConfig(configDir))
}

func TestLoadConfig_DefaultFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")

	v, err := loadConfig(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, configFileExt))

	assert.Equal(t, types.BackendSQLite, v.GetString(cfgKeyBackend))
	assert.Equal(t, "warn", v.GetString(cfgKeyLogLevel))
	assert.Equal(t, 50, settings.New(v).Int("intranet", types.SettingVersionHistoryLength))
	assert.True(t, license.FromConfig(v).Allowed(types.FeatureAutomation, "example.com"))
}

func TestObjectCommands(t *testing.T) {
	e := newCLIEnv(t, "settings:\n  UseLastVersionInterval: 0\n")

	out := e.mustRun("object", "create", "--name", "home", "--field", "title=Welcome", "--field", "body=hello")
	assert.Equal(t, "Saved cms.page 1 as version 1.0 (entry 1)\n", out)

	out = e.mustRun("object", "update", "1", "--field", "body=bye", "--unset", "title")
	assert.Contains(t, out, "as version 1.1")

	out = e.mustRun("object", "show", "1")
	assert.Contains(t, out, `cms.page 1 "home"`)
	assert.Contains(t, out, "body = bye")
	assert.NotContains(t, out, "title")

	out = e.mustRun("object", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "home")

	out = e.mustRun("history", "show", "1")
	assert.Contains(t, out, "Version 1.0 of cms.page 1")
	assert.Contains(t, out, "body = hello")

	_, stderr, code := e.run("object", "create")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, "--name is required")

	_, _, code = e.run("object", "show")
	assert.Equal(t, exitUserError, code, "missing positional argument")
	_, _, code = e.run("object", "list", "--bogus")
	assert.Equal(t, exitUserError, code, "unknown flag")
}

func TestCheckoutCommands(t *testing.T) {
	e := newCLIEnv(t, "")
	e.mustRun("user", "add", "bob")
	e.mustRun("object", "create", "--name", "about")

	out := e.mustRun("checkout", "1")
	assert.Contains(t, out, "Checked out cms.page 1 to administrator")

	_, stderr, code := e.run("--user", "bob", "checkin", "1")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, types.ErrNotCheckoutOwner.Error())

	e.mustRun("object", "update", "1", "--field", "body=edited")
	out = e.mustRun("undo-checkout", "1")
	assert.Contains(t, out, "Undid checkout of cms.page 1")

	obj := decode[types.VersionedObject](t, e.mustRun("--json", "object", "show", "1"))
	assert.Empty(t, obj.Fields["body"], "undo discards edits made while checked out")
	assert.False(t, obj.Checkout.IsCheckedOut())
}

func TestWorkflowCommands(t *testing.T) {
	e := newCLIEnv(t, "")

	created := decode[struct {
		Workflow types.Workflow
		Steps    []types.WorkflowStep
	}](t, e.mustRun("--json", "workflow", "create", "routing", "--kind", "automation"))
	require.Len(t, created.Steps, 2)
	wfID := fmt.Sprint(created.Workflow.WorkflowID)
	finished := fmt.Sprint(created.Steps[1].StepID)

	step := decode[types.WorkflowStep](t, e.mustRun("--json", "workflow", "add-step", wfID, "check",
		"--type", "condition", "--exit", "late:timeout", "--exit", "yes:case", "--exit", "no:default"))
	require.Len(t, step.Definition.SourcePoints, 3)
	cond := fmt.Sprint(step.StepID)

	tr := decode[types.WorkflowTransition](t, e.mustRun("--json", "workflow", "connect", cond, finished, "--type", "automatic"))
	assert.Equal(t, step.Definition.SourcePoints[1].GUID, tr.SourcePointGUID)

	_, stderr, code := e.run("workflow", "connect", cond, finished, "--exit", step.Definition.SourcePoints[1].GUID.String())
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, stderr, types.ErrDuplicateTransition.Error())

	out := e.mustRun("workflow", "next", cond)
	assert.Contains(t, out, "finished")

	_, _, code = e.run("workflow", "add-step", wfID, "bad", "--type", "nonsense")
	assert.Equal(t, exitUserError, code)
	_, _, code = e.run("workflow", "secure", cond, "--users", "all-except-assigned")
	assert.Equal(t, exitUserError, code, "condition steps carry no security")
}

func TestApproveCommands(t *testing.T) {
	e := newCLIEnv(t, "")
	e.mustRun("user", "add", "dave")
	e.mustRun("user", "add", "erin")
	e.mustRun("workflow", "create", "publishing", "--basic")

	out := e.mustRun("approve", "check", "2", "--as", "dave")
	assert.Equal(t, "dave may not approve step \"published\"\n", out)

	e.mustRun("user", "grant", "dave", "cms.workflow:manage")
	out = e.mustRun("approve", "check", "2", "--as", "dave")
	assert.Equal(t, "dave may approve step \"published\"\n", out)

	e.mustRun("approve", "assign-user", "2", "erin")
	e.mustRun("workflow", "secure", "2", "--users", "all-except-assigned", "--roles", "all-except-assigned")
	out = e.mustRun("approve", "check", "2", "--as", "erin")
	assert.Contains(t, out, "erin may not approve")

	users := decode[[]types.User](t, e.mustRun("--json", "approve", "approvers", "2"))
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.UserName
	}
	assert.Equal(t, []string{"administrator", "dave"}, names)
}

func TestSiteSettingsAndEvents(t *testing.T) {
	e := newCLIEnv(t, "settings:\n  VersionHistoryLength: 20\n  intranet:\n    VersionHistoryLength: 3\n")

	out := e.mustRun("site", "add", "intranet")
	assert.Contains(t, out, "VersionHistoryLength = 3")
	assert.Contains(t, out, "MajorVersionHistoryLength = 25")

	e.mustRun("object", "create", "--name", "tmp")
	e.mustRun("object", "delete", "1")

	events := decode[[]types.Event](t, e.mustRun("--json", "events"))
	require.NotEmpty(t, events)
	assert.Equal(t, "DELETEOBJECT", events[0].Code)
	assert.Equal(t, "administrator", events[0].UserName)
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.prom")
	e := newCLIEnv(t, "metrics_file: "+path+"\n")

	e.mustRun("object", "create", "--name", "home")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `folio_versions_total{outcome="created"} 1`)
}

func TestParseSourcePoint(t *testing.T) {
	sp, err := parseSourcePoint("yes:case")
	require.NoError(t, err)
	assert.Equal(t, "yes", sp.Name)
	assert.Equal(t, types.SourcePointSwitchCase, sp.Type)

	sp, err = parseSourcePoint("next")
	require.NoError(t, err)
	assert.Equal(t, types.SourcePointStandard, sp.Type)

	for _, bad := range []string{"", ":case", "x:sideways"} {
		_, err := parseSourcePoint(bad)
		assert.Error(t, err, bad)
	}
}
