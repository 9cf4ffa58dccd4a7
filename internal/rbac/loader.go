package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Load fills the enforcer with role permissions and user-role assignments
// from <prefix>role_permissions and <prefix>user_roles.
func Load(ctx context.Context, db *sql.DB, prefix string, e *Enforcer) error {
	if db == nil || e == nil {
		return nil
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT role, perm FROM %srole_permissions`, prefix))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var role, perm string
		if err := rows.Scan(&role, &perm); err != nil {
			return err
		}
		if err := e.Grant(role, perm); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows2, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT user_id, role FROM %suser_roles`, prefix))
	if err != nil {
		return err
	}
	defer rows2.Close()
	for rows2.Next() {
		var uid, role string
		if err := rows2.Scan(&uid, &role); err != nil {
			return err
		}
		if err := e.Assign(uid, role); err != nil {
			return err
		}
	}
	return rows2.Err()
}
