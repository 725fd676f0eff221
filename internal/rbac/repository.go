package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unifiedbase/unifiedbase/internal/platform/db"
)

// PGCatalog implements Catalog and Store using PostgreSQL.
type PGCatalog struct {
	pool *pgxpool.Pool
}

// NewPGCatalog constructs a PostgreSQL backed catalog.
func NewPGCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool}
}

var (
	_ Catalog = (*PGCatalog)(nil)
	_ Store   = (*PGCatalog)(nil)
)

const uniqueViolation = "23505"

// catalogErr maps pgx errors onto the package taxonomy.
func catalogErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %s: %v", ErrCatalogUnavailable, op, err)
}

// scopeOrNull converts the empty scope to SQL NULL.
func scopeOrNull(scope string) *string {
	if scope == "" {
		return nil
	}
	return &scope
}

func scopeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetIdentity fetches the minimal identity record for the resolver.
func (c *PGCatalog) GetIdentity(ctx context.Context, userID uuid.UUID) (*Identity, error) {
	var ident Identity
	err := c.pool.QueryRow(ctx,
		`SELECT id, is_superuser FROM users WHERE id = $1 AND is_active`,
		userID,
	).Scan(&ident.ID, &ident.IsSuperuser)
	if err != nil {
		return nil, catalogErr("get identity", err)
	}
	return &ident, nil
}

// ListActiveAssignments returns active, unexpired assignments in the global
// scope unioned with the given scope. Expiry is enforced here at read time;
// the background sweep additionally clears the active flag.
func (c *PGCatalog) ListActiveAssignments(ctx context.Context, userID uuid.UUID, scope string) ([]RoleAssignment, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, user_id, role_id, app_identifier, assigned_by, assigned_at, expires_at, is_active
		FROM role_assignments
		WHERE user_id = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > now())
		  AND (app_identifier IS NULL OR app_identifier = NULLIF($2, ''))`,
		userID, scope,
	)
	if err != nil {
		return nil, catalogErr("list active assignments", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows pgx.Rows) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	for rows.Next() {
		var (
			a     RoleAssignment
			scope *string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &scope, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt, &a.IsActive); err != nil {
			return nil, catalogErr("scan assignment", err)
		}
		a.AppIdentifier = scopeString(scope)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("iterate assignments", err)
	}
	return assignments, nil
}

// ListRolesByIDs fetches roles without their permission sets.
func (c *PGCatalog) ListRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, display_name, description, app_identifier, external_group,
		       is_system, is_default, created_at, updated_at
		FROM roles WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, catalogErr("list roles by ids", err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var (
			r             Role
			scope         *string
			externalGroup *string
			description   *string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &description, &scope, &externalGroup,
			&r.IsSystem, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, catalogErr("scan role", err)
		}
		r.Description = scopeString(description)
		r.AppIdentifier = scopeString(scope)
		r.ExternalGroup = scopeString(externalGroup)
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("iterate roles", err)
	}
	return roles, nil
}

// ListRolePermissionNames returns the distinct permission names granted by
// any of the given roles.
func (c *PGCatalog) ListRolePermissionNames(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := c.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ANY($1)`,
		roleIDs,
	)
	if err != nil {
		return nil, catalogErr("list role permission names", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// ListAllPermissionNames returns every permission name in the catalog.
func (c *PGCatalog) ListAllPermissionNames(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, catalogErr("list all permission names", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

func scanNames(rows pgx.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, catalogErr("scan name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("iterate names", err)
	}
	return names, nil
}

// CreatePermission inserts a permission. Duplicate names surface as ErrConflict.
func (c *PGCatalog) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO permissions (id, name, display_name, description, resource_type, action, app_identifier, is_system, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9)`,
		p.ID, p.Name, p.DisplayName, p.Description, p.ResourceType, p.Action, p.AppIdentifier, p.IsSystem, p.CreatedAt,
	)
	if err != nil {
		return Permission{}, catalogErr("create permission", err)
	}
	return p, nil
}

// ListPermissions returns permissions matching the filter, ordered by name.
func (c *PGCatalog) ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, display_name, description, resource_type, action, app_identifier, is_system, created_at
		FROM permissions
		WHERE ($1 = '' OR app_identifier = $1)
		  AND ($2 = '' OR resource_type = $2)
		  AND ($3::boolean IS NULL OR is_system = $3)
		ORDER BY name`,
		filter.AppIdentifier, filter.ResourceType, filter.IsSystem,
	)
	if err != nil {
		return nil, catalogErr("list permissions", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("iterate permissions", err)
	}
	return perms, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var (
		p           Permission
		description *string
		scope       *string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &description, &p.ResourceType, &p.Action, &scope, &p.IsSystem, &p.CreatedAt); err != nil {
		return Permission{}, catalogErr("scan permission", err)
	}
	p.Description = scopeString(description)
	p.AppIdentifier = scopeString(scope)
	return p, nil
}

// GetPermission fetches a permission by ID.
func (c *PGCatalog) GetPermission(ctx context.Context, id uuid.UUID) (Permission, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, name, display_name, description, resource_type, action, app_identifier, is_system, created_at
		FROM permissions WHERE id = $1`,
		id,
	)
	return scanPermission(row)
}

// GetPermissionByName fetches a permission by its unique name.
func (c *PGCatalog) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, name, display_name, description, resource_type, action, app_identifier, is_system, created_at
		FROM permissions WHERE name = $1`,
		name,
	)
	return scanPermission(row)
}

// UpdatePermission applies display metadata changes.
func (c *PGCatalog) UpdatePermission(ctx context.Context, id uuid.UUID, update PermissionUpdate) (Permission, error) {
	row := c.pool.QueryRow(ctx, `
		UPDATE permissions
		SET display_name = COALESCE($2, display_name),
		    description  = COALESCE($3, description)
		WHERE id = $1
		RETURNING id, name, display_name, description, resource_type, action, app_identifier, is_system, created_at`,
		id, update.DisplayName, update.Description,
	)
	return scanPermission(row)
}

// DeletePermission removes a permission and its role links.
func (c *PGCatalog) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return catalogErr("delete permission links", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return catalogErr("delete permission", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateRole inserts a role and its permission links.
func (c *PGCatalog) CreateRole(ctx context.Context, r Role) (Role, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	err := db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO roles (id, name, display_name, description, app_identifier, external_group, is_system, is_default, created_at, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)`,
			r.ID, r.Name, r.DisplayName, r.Description, r.AppIdentifier, r.ExternalGroup, r.IsSystem, r.IsDefault, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return catalogErr("create role", err)
		}
		return insertRolePermissions(ctx, tx, r.ID, r.PermissionIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return r, nil
}

func insertRolePermissions(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	for _, pid := range permissionIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			roleID, pid,
		); err != nil {
			return catalogErr("attach permission", err)
		}
	}
	return nil
}

// ListRoles returns roles matching the filter with their permission sets.
func (c *PGCatalog) ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, display_name, description, app_identifier, external_group,
		       is_system, is_default, created_at, updated_at
		FROM roles
		WHERE ($1 = '' OR app_identifier = $1)
		  AND ($2::boolean IS NULL OR is_system = $2)
		  AND ($3::boolean IS NULL OR is_default = $3)
		ORDER BY name`,
		filter.AppIdentifier, filter.IsSystem, filter.IsDefault,
	)
	if err != nil {
		return nil, catalogErr("list roles", err)
	}
	roles, err := func() ([]Role, error) {
		defer rows.Close()
		return scanRoles(rows)
	}()
	if err != nil {
		return nil, err
	}
	return c.attachPermissionIDs(ctx, roles)
}

func (c *PGCatalog) attachPermissionIDs(ctx context.Context, roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return roles, nil
	}
	ids := make([]uuid.UUID, len(roles))
	index := make(map[uuid.UUID]int, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
		index[r.ID] = i
	}
	rows, err := c.pool.Query(ctx,
		`SELECT role_id, permission_id FROM role_permissions WHERE role_id = ANY($1)`, ids)
	if err != nil {
		return nil, catalogErr("list role permissions", err)
	}
	defer rows.Close()
	for rows.Next() {
		var roleID, permID uuid.UUID
		if err := rows.Scan(&roleID, &permID); err != nil {
			return nil, catalogErr("scan role permission", err)
		}
		if i, ok := index[roleID]; ok {
			roles[i].PermissionIDs = append(roles[i].PermissionIDs, permID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("iterate role permissions", err)
	}
	return roles, nil
}

// GetRole fetches a role by ID with its permission set.
func (c *PGCatalog) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	roles, err := c.ListRolesByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return Role{}, err
	}
	if len(roles) == 0 {
		return Role{}, ErrNotFound
	}
	withPerms, err := c.attachPermissionIDs(ctx, roles)
	if err != nil {
		return Role{}, err
	}
	return withPerms[0], nil
}

// GetRoleByExternalGroup fetches the role linked to an identity-provider
// group within a scope.
func (c *PGCatalog) GetRoleByExternalGroup(ctx context.Context, group, scope string) (Role, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, display_name, description, app_identifier, external_group,
		       is_system, is_default, created_at, updated_at
		FROM roles
		WHERE external_group = $1
		  AND (app_identifier IS NOT DISTINCT FROM NULLIF($2, ''))
		LIMIT 1`,
		group, scope,
	)
	if err != nil {
		return Role{}, catalogErr("get role by external group", err)
	}
	roles, err := func() ([]Role, error) {
		defer rows.Close()
		return scanRoles(rows)
	}()
	if err != nil {
		return Role{}, err
	}
	if len(roles) == 0 {
		return Role{}, ErrNotFound
	}
	withPerms, err := c.attachPermissionIDs(ctx, roles)
	if err != nil {
		return Role{}, err
	}
	return withPerms[0], nil
}

// GetDefaultRoles returns roles auto-assigned to new users for a scope,
// including global defaults.
func (c *PGCatalog) GetDefaultRoles(ctx context.Context, scope string) ([]Role, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, name, display_name, description, app_identifier, external_group,
		       is_system, is_default, created_at, updated_at
		FROM roles
		WHERE is_default
		  AND (app_identifier IS NULL OR app_identifier = NULLIF($1, ''))`,
		scope,
	)
	if err != nil {
		return nil, catalogErr("get default roles", err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// UpdateRole applies the update and replaces the permission set when provided.
func (c *PGCatalog) UpdateRole(ctx context.Context, id uuid.UUID, update RoleUpdate) (Role, error) {
	err := db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE roles
			SET name         = COALESCE($2, name),
			    display_name = COALESCE($3, display_name),
			    description  = COALESCE($4, description),
			    is_default   = COALESCE($5, is_default),
			    updated_at   = now()
			WHERE id = $1`,
			id, update.Name, update.DisplayName, update.Description, update.IsDefault,
		)
		if err != nil {
			return catalogErr("update role", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if update.PermissionIDs != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
				return catalogErr("clear role permissions", err)
			}
			return insertRolePermissions(ctx, tx, id, update.PermissionIDs)
		}
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return c.GetRole(ctx, id)
}

// DeleteRole removes a role together with its permission links and
// assignments.
func (c *PGCatalog) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_assignments WHERE role_id = $1`, id); err != nil {
			return catalogErr("delete role assignments", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return catalogErr("delete role permissions", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return catalogErr("delete role", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetRolePermissions replaces the permission set of a role.
func (c *PGCatalog) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	return db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return catalogErr("clear role permissions", err)
		}
		if err := insertRolePermissions(ctx, tx, roleID, permissionIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE roles SET updated_at = now() WHERE id = $1`, roleID); err != nil {
			return catalogErr("touch role", err)
		}
		return nil
	})
}

// CreateAssignment inserts an assignment. The partial unique index on active
// (user, role, scope) triples turns duplicates into ErrConflict.
func (c *PGCatalog) CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	a.IsActive = true
	_, err := c.pool.Exec(ctx, `
		INSERT INTO role_assignments (id, user_id, role_id, app_identifier, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, TRUE)`,
		a.ID, a.UserID, a.RoleID, a.AppIdentifier, a.AssignedBy, a.AssignedAt, a.ExpiresAt,
	)
	if err != nil {
		return RoleAssignment{}, catalogErr("create assignment", err)
	}
	return a, nil
}

// DeleteAssignment removes the assignment for the exact (user, role, scope)
// triple. The empty scope matches only unscoped assignments.
func (c *PGCatalog) DeleteAssignment(ctx context.Context, userID, roleID uuid.UUID, scope string) error {
	tag, err := c.pool.Exec(ctx, `
		DELETE FROM role_assignments
		WHERE user_id = $1 AND role_id = $2
		  AND app_identifier IS NOT DISTINCT FROM NULLIF($3, '')`,
		userID, roleID, scope,
	)
	if err != nil {
		return catalogErr("delete assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssignments returns the user's active assignments; a concrete scope
// includes global assignments as well.
func (c *PGCatalog) ListAssignments(ctx context.Context, userID uuid.UUID, scope string) ([]RoleAssignment, error) {
	return c.ListActiveAssignments(ctx, userID, scope)
}

// DeactivateExpired clears the active flag on expired assignments and
// returns the affected user IDs.
func (c *PGCatalog) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := c.pool.Query(ctx, `
		UPDATE role_assignments
		SET is_active = FALSE
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING user_id`,
		now,
	)
	if err != nil {
		return nil, catalogErr("deactivate expired", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]struct{})
	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, catalogErr("scan expired user", err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogErr("iterate expired users", err)
	}
	return users, nil
}
