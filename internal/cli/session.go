package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/folio/internal/eventlog"
	"github.com/mesh-intelligence/folio/internal/license"
	"github.com/mesh-intelligence/folio/internal/metrics"
	"github.com/mesh-intelligence/folio/internal/settings"
	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/internal/versioning"
	"github.com/mesh-intelligence/folio/internal/workflow"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// session is the attached backend plus the engines built over it for one
// command invocation.
type session struct {
	ctx  context.Context
	cfg  *viper.Viper
	user *types.User

	backend  *sqlite.Backend
	store    *sqlite.Store
	settings *settings.Provider
	events   *eventlog.Log
	registry *prometheus.Registry

	versions  *versioning.Manager
	graph     *workflow.Graph
	approvals *workflow.Evaluator
}

// openSession loads configuration, attaches the backend and resolves the
// acting user. The caller must call close.
func openSession(cmd *cobra.Command) (*session, error) {
	configDir, err := resolveConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, err
	}
	dataDir, err := resolveDataDir(cfg.GetString(cfgKeyDataDir))
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	backend := sqlite.NewBackend()
	if err := backend.Attach(types.Config{Backend: cfg.GetString(cfgKeyBackend), DataDir: dataDir}); err != nil {
		return nil, fmt.Errorf("attach backend: %w", err)
	}
	store, err := backend.Store()
	if err != nil {
		backend.Detach()
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		settings: settings.New(cfg),
		registry: prometheus.NewRegistry(),
	}
	s.events = eventlog.New(eventlog.Options{
		Level:  cfg.GetString(cfgKeyLogLevel),
		Pretty: cfg.GetBool(cfgKeyLogPretty),
		Output: cmd.ErrOrStderr(),
		Sink:   store,
	})

	gate := license.FromConfig(cfg)
	m := metrics.New(s.registry)
	s.versions = versioning.NewManager(store.Versions(), versioning.Config{
		Settings: s.settings,
		Events:   s.events,
		Gate:     gate,
		Metrics:  m,
	})
	wcfg := workflow.Config{Gate: gate, Events: s.events, Metrics: m}
	s.graph = workflow.NewGraph(store.Workflows(), wcfg)
	s.approvals = workflow.NewEvaluator(store.Workflows(), store, wcfg)

	name := flags.user
	if name == "" {
		name = defaultUser
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s.user, err = store.GetUserByName(ctx, name)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("acting user %q: %w", name, err)
	}
	ctx = types.WithUser(ctx, s.user)
	if flags.domain != "" {
		ctx = types.WithDomain(ctx, flags.domain)
	}
	s.ctx = ctx
	return s, nil
}

// close flushes the event log and metrics, then detaches the backend.
func (s *session) close() error {
	var errs []error
	if err := s.events.Close(); err != nil {
		errs = append(errs, err)
	}
	if path := s.cfg.GetString(cfgKeyMetricsFile); path != "" {
		if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := s.backend.Detach(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and closes the session. A close
// failure is reported only when fn succeeded.
func withSession(cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
