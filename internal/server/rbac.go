package server

import (
	"context"
	"database/sql"

	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/rbac"
)

// initEnforcer creates the casbin-backed enforcer and loads grants from the
// database.
func initEnforcer(ctx context.Context, db *sql.DB, tablePrefix string) (*rbac.Enforcer, error) {
	e, err := rbac.NewEnforcer()
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := rbac.Load(ctx, db, tablePrefix, e); err != nil {
			logger.L.Error("load rbac", "err", err)
		}
	}
	return e, nil
}
