// Package sdk exposes site checks, table creation and engine migrations to
// Go programs and the adminctl tool.
package sdk

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/config"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/server/reserved"
	"github.com/faciam-dev/gcadmin/internal/store/memstore"
	"github.com/faciam-dev/gcadmin/internal/store/sqlstore"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/migrator"
	"github.com/faciam-dev/gcadmin/pkg/util"
)

// ErrNoDB is returned by database operations when no DB is configured.
var ErrNoDB = errors.New("sdk: no database configured")

// Service exposes high level operations over a site definition.
type Service interface {
	// Check parses and validates a site definition without a database.
	Check(ctx context.Context, site []byte) (*Report, error)
	// DDL returns the CREATE TABLE statements for the site's models.
	DDL(site []byte) ([]string, error)
	// CreateTables creates missing model tables.
	CreateTables(ctx context.Context, site []byte) error
	// MissingTables lists model tables absent from the database.
	MissingTables(ctx context.Context, site []byte) ([]string, error)
	// Migrate moves the engine tables to the semantic version target.
	// "" and "latest" select the newest version.
	Migrate(ctx context.Context, target string) error
	// Version returns the applied engine schema version.
	Version(ctx context.Context) (string, error)
}

// ModelReport summarizes one checked model.
type ModelReport struct {
	Model   string
	Table   string
	Fields  int
	Filters []string
	Actions []string
}

// Report is the result of Check.
type Report struct {
	Models   []ModelReport
	Tables   []string
	Reserved []string
}

// New returns a Service initialized with the given configuration.
func New(cfg ServiceConfig) Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = config.DefaultTablePrefix
	}
	return &service{cfg: cfg, logger: logger}
}

type service struct {
	cfg    ServiceConfig
	logger *zap.SugaredLogger
}

func (s *service) Check(ctx context.Context, site []byte) (*Report, error) {
	file, err := config.ParseSite(site)
	if err != nil {
		return nil, err
	}
	src, err := file.Source()
	if err != nil {
		return nil, err
	}
	tables, err := file.Tables(src)
	if err != nil {
		return nil, err
	}
	res, err := reserved.Load(s.cfg.ReservedFile, s.cfg.TablePrefix)
	if err != nil {
		return nil, err
	}
	if err := res.Check(tables); err != nil {
		return nil, err
	}

	reg := widgets.NewRegistry()
	if s.cfg.WidgetDir != "" {
		n, err := reg.RegisterDir(s.cfg.WidgetDir)
		if err != nil {
			return nil, fmt.Errorf("widget aliases: %w", err)
		}
		s.logger.Debugf("registered %d widget aliases from %s", n, s.cfg.WidgetDir)
	}
	st, err := admin.NewSite(admin.Options{Store: memstore.New(src), Widgets: reg, Authz: rbac.AllowAll{}})
	if err != nil {
		return nil, err
	}
	if err := file.Apply(st, src); err != nil {
		return nil, err
	}
	st.Freeze()

	rep := &Report{Tables: tables, Reserved: res.Patterns()}
	for _, id := range st.Models() {
		m, err := st.Describe(id)
		if err != nil {
			return nil, err
		}
		mr := ModelReport{Model: id.String(), Table: m.Table(), Fields: len(m.Fields())}
		filters, err := st.GetListFilters(id)
		if err != nil {
			return nil, err
		}
		for _, f := range filters {
			mr.Filters = append(mr.Filters, f.Path)
		}
		specs, err := st.GetActionSpecs(ctx, id, rbac.User{ID: "check", Roles: []string{rbac.SuperRole}})
		if err != nil {
			return nil, err
		}
		for _, sp := range specs {
			mr.Actions = append(mr.Actions, sp.Name)
		}
		rep.Models = append(rep.Models, mr)
	}
	s.logger.Infof("site ok: %d models", len(rep.Models))
	return rep, nil
}

func (s *service) store(site []byte) (*sqlstore.Store, *config.SiteFile, error) {
	if s.cfg.DB == nil {
		return nil, nil, ErrNoDB
	}
	file, err := config.ParseSite(site)
	if err != nil {
		return nil, nil, err
	}
	src, err := file.Source()
	if err != nil {
		return nil, nil, err
	}
	st, err := sqlstore.New(s.cfg.DB, s.cfg.Driver, src)
	if err != nil {
		return nil, nil, err
	}
	return st, file, nil
}

func (s *service) DDL(site []byte) ([]string, error) {
	st, file, err := s.store(site)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range file.ModelIDs() {
		m, err := st.ModelDescriptor(id)
		if err != nil {
			return nil, err
		}
		stmts, err := st.DDL(m)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

func (s *service) CreateTables(ctx context.Context, site []byte) error {
	st, file, err := s.store(site)
	if err != nil {
		return err
	}
	if err := st.CreateTables(ctx, file.ModelIDs()...); err != nil {
		return err
	}
	s.logger.Infof("created tables for %d models", len(file.ModelIDs()))
	return nil
}

func (s *service) MissingTables(ctx context.Context, site []byte) ([]string, error) {
	st, file, err := s.store(site)
	if err != nil {
		return nil, err
	}
	tables, err := file.Tables(st)
	if err != nil {
		return nil, err
	}
	return config.CheckTables(ctx, s.cfg.DB, util.DialectFromDriver(s.cfg.Driver), tables)
}

func (s *service) Migrate(ctx context.Context, target string) error {
	if s.cfg.DB == nil {
		return ErrNoDB
	}
	m := migrator.New(s.cfg.Driver, s.cfg.TablePrefix)
	to, err := m.Resolve(target)
	if err != nil {
		return err
	}
	cur, err := m.Current(ctx, s.cfg.DB)
	if err != nil {
		return err
	}
	switch {
	case to > cur:
		err = m.Up(ctx, s.cfg.DB, to)
	case to < cur:
		err = m.Down(ctx, s.cfg.DB, to)
	default:
		s.logger.Infof("engine schema already at %s", m.SemVer(cur))
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Infof("engine schema migrated %s -> %s", m.SemVer(cur), m.SemVer(to))
	return nil
}

func (s *service) Version(ctx context.Context) (string, error) {
	if s.cfg.DB == nil {
		return "", ErrNoDB
	}
	m := migrator.New(s.cfg.Driver, s.cfg.TablePrefix)
	v, err := m.Current(ctx, s.cfg.DB)
	if err != nil {
		return "", err
	}
	return m.SemVer(v), nil
}
