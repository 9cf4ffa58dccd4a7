package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/api/handler"
	"github.com/faciam-dev/gcadmin/internal/audit"
	"github.com/faciam-dev/gcadmin/internal/auth"
	"github.com/faciam-dev/gcadmin/internal/config"
	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/rbac"
	"github.com/faciam-dev/gcadmin/internal/scopetoken"
	"github.com/faciam-dev/gcadmin/internal/server/middleware"
	"github.com/faciam-dev/gcadmin/internal/server/reserved"
	"github.com/faciam-dev/gcadmin/internal/store/memstore"
	"github.com/faciam-dev/gcadmin/internal/store/sqlstore"
	"github.com/faciam-dev/gcadmin/internal/widgets"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/metrics"
	"github.com/faciam-dev/gcadmin/pkg/store"
	pkgutil "github.com/faciam-dev/gcadmin/pkg/util"
)

// Server is the wired admin API.
type Server struct {
	API  huma.API
	Site *admin.Site
	JWT  *auth.JWT

	queue    action.Dispatcher
	recorder *audit.Recorder
	cancel   context.CancelFunc
	closers  []func()
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.API.Adapter() }

// Close stops the background workers and waits for pending deliveries.
func (s *Server) Close() {
	s.cancel()
	for _, c := range s.closers {
		c()
	}
}

// New loads the site definition, wires storage, auth, RBAC, events, audit
// and the background queue, and registers every operation.
func New(ctx context.Context, db *sql.DB, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	secret, err := jwtSecret()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	srv := &Server{cancel: cancel, JWT: auth.NewJWT(secret, cfg.TokenTTL)}
	fail := func(err error) (*Server, error) {
		srv.Close()
		return nil, err
	}

	enf, err := initEnforcer(ctx, db, cfg.DB.TablePrefix)
	if err != nil {
		return fail(err)
	}
	site, err := buildSite(ctx, srv, db, cfg, secret, enf)
	if err != nil {
		return fail(err)
	}
	srv.Site = site

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "If-Modified-Since"},
		ExposedHeaders:   []string{"ETag", "Last-Modified"},
		AllowCredentials: true,
	}))
	api := humachi.New(r, huma.DefaultConfig("Admin API", "1.0.0"))
	srv.API = api

	var queue metrics.QueueLengther
	if q, ok := srv.queue.(metrics.QueueLengther); ok {
		queue = q
	}
	setupMetrics(ctx, api, r, queue)

	api.UseMiddleware(auth.Middleware(api, srv.JWT))
	api.UseMiddleware(middleware.RBAC(api, enf, cfg.AccessPerm))

	auth.Register(api, &auth.Handler{JWT: srv.JWT})
	handler.RegisterAdmin(api, &handler.AdminHandler{Site: site})
	handler.RegisterWidget(api, &handler.WidgetHandler{Reg: site.Widgets()})
	if db != nil {
		handler.RegisterAudit(api, &handler.AuditHandler{Site: site, Recorder: srv.recorder})
		handler.RegisterRBAC(api, &handler.RBACHandler{Grants: &rbac.Grants{DB: db, Driver: cfg.DB.Driver, Prefix: cfg.DB.TablePrefix}})
	}
	return srv, nil
}

func buildSite(ctx context.Context, srv *Server, db *sql.DB, cfg Config, secret string, authz rbac.Authorizer) (*admin.Site, error) {
	if cfg.SiteFile == "" {
		return nil, errors.New("no site definition configured")
	}
	file, err := config.LoadSite(cfg.SiteFile)
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
	res, err := reserved.Load(cfg.ReservedFile, cfg.DB.TablePrefix)
	if err != nil {
		return nil, err
	}
	if err := res.Check(tables); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, db, cfg, src, file.ModelIDs(), tables)
	if err != nil {
		return nil, err
	}

	reg := widgets.NewRegistry()
	if cfg.WidgetDir != "" {
		n, err := reg.RegisterDir(cfg.WidgetDir)
		if err != nil {
			return nil, fmt.Errorf("widget aliases: %w", err)
		}
		logger.L.Info("widget aliases loaded", "dir", cfg.WidgetDir, "count", n)
	}

	tokens, err := scopetoken.New(scopeSecret(secret))
	if err != nil {
		return nil, err
	}
	evts, err := initEvents(db, cfg)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, evts.Wait)

	observers := []action.Observer{action.Metrics, evts}
	opts := admin.Options{Store: st, Widgets: reg, Authz: authz, Tokens: tokens}
	if db != nil {
		srv.recorder = &audit.Recorder{DB: db, Driver: cfg.DB.Driver, TablePrefix: cfg.DB.TablePrefix}
		observers = append(observers, srv.recorder)
		opts.Changes = srv.recorder
	}
	opts.Observers = observers

	local, err := srv.initQueue(cfg)
	if err != nil {
		return nil, err
	}
	opts.Dispatcher = srv.queue

	site, err := admin.NewSite(opts)
	if err != nil {
		return nil, err
	}
	if err := file.Apply(site, src); err != nil {
		return nil, err
	}
	site.Freeze()
	srv.startWorkers(ctx, cfg, site, local)
	logger.L.Info("admin site ready", "models", len(site.Models()), "store", fmt.Sprintf("%T", st))
	return site, nil
}

func openStore(ctx context.Context, db *sql.DB, cfg Config, src descriptor.Source, ids []descriptor.ModelID, tables []string) (store.Store, error) {
	if db == nil {
		logger.L.Warn("no database configured; serving from memory")
		return memstore.New(src), nil
	}
	st, err := sqlstore.New(db, cfg.DB.Driver, src)
	if err != nil {
		return nil, err
	}
	if cfg.CreateTables {
		if err := st.CreateTables(ctx, ids...); err != nil {
			return nil, err
		}
		return st, nil
	}
	missing, err := config.CheckTables(ctx, db, pkgutil.DialectFromDriver(cfg.DB.Driver), tables)
	if err != nil {
		logger.L.Warn("table check failed", "err", err)
	} else if len(missing) > 0 {
		return nil, fmt.Errorf("missing tables %v; create them or start with table creation enabled", missing)
	}
	return st, nil
}
