package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Grants edits the persisted role permissions and user roles that Load reads.
type Grants struct {
	DB     *sql.DB
	Driver string
	Prefix string
}

func (g *Grants) ph(i int) string {
	if g.Driver == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (g *Grants) insertIgnore(table, a, b string) string {
	if g.Driver == "postgres" {
		return fmt.Sprintf("INSERT INTO %s%s(%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING", g.Prefix, table, a, b)
	}
	return fmt.Sprintf("INSERT IGNORE INTO %s%s(%s, %s) VALUES (?, ?)", g.Prefix, table, a, b)
}

// GrantPerm gives role the permission perm.
func (g *Grants) GrantPerm(ctx context.Context, role, perm string) error {
	_, err := g.DB.ExecContext(ctx, g.insertIgnore("role_permissions", "role", "perm"), role, perm)
	return err
}

// RevokePerm removes perm from role.
func (g *Grants) RevokePerm(ctx context.Context, role, perm string) error {
	q := fmt.Sprintf("DELETE FROM %srole_permissions WHERE role = %s AND perm = %s", g.Prefix, g.ph(1), g.ph(2))
	_, err := g.DB.ExecContext(ctx, q, role, perm)
	return err
}

// AssignRole gives user the role.
func (g *Grants) AssignRole(ctx context.Context, user, role string) error {
	_, err := g.DB.ExecContext(ctx, g.insertIgnore("user_roles", "user_id", "role"), user, role)
	return err
}

// UnassignRole removes role from user.
func (g *Grants) UnassignRole(ctx context.Context, user, role string) error {
	q := fmt.Sprintf("DELETE FROM %suser_roles WHERE user_id = %s AND role = %s", g.Prefix, g.ph(1), g.ph(2))
	_, err := g.DB.ExecContext(ctx, q, user, role)
	return err
}

// RolePerms returns every role with its permissions.
func (g *Grants) RolePerms(ctx context.Context) (map[string][]string, error) {
	rows, err := g.DB.QueryContext(ctx, fmt.Sprintf("SELECT role, perm FROM %srole_permissions ORDER BY role, perm", g.Prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var role, perm string
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, err
		}
		out[role] = append(out[role], perm)
	}
	return out, rows.Err()
}
