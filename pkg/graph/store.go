package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arborhq/arbor/pkg/model"
)

// ErrNodeNotFound is returned when a node does not exist in the store.
var ErrNodeNotFound = errors.New("node not found")

// Store persists workspace nodes, principals, ownership and grants.
type Store struct {
	db *sql.DB
}

// NewStore creates a new graph store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetNode retrieves a node by ID. Returns ErrNodeNotFound if absent.
func (s *Store) GetNode(ctx context.Context, id model.NodeID) (*model.Node, error) {
	query := `
		SELECT id, node_type, name, publication_status, is_based_on, created_at, updated_at
		FROM nodes
		WHERE id = $1
	`

	var node model.Node
	var status, basedOn sql.NullString

	err := s.db.QueryRowContext(ctx, query, string(id)).Scan(
		&node.ID,
		&node.Type,
		&node.Name,
		&status,
		&basedOn,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	if status.Valid {
		node.PublicationStatus = model.PublicationStatus(status.String)
	}
	if basedOn.Valid {
		node.IsBasedOn = model.NodeID(basedOn.String)
	}

	return &node, nil
}

// CreateNode inserts a node and its owner edge in one transaction. Every
// node carries exactly one owner edge from the moment it exists.
func (s *Store) CreateNode(ctx context.Context, node *model.Node, ownerID model.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var status, basedOn interface{}
	if node.PublicationStatus != "" {
		status = string(node.PublicationStatus)
	}
	if node.IsBasedOn != "" {
		basedOn = string(node.IsBasedOn)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, node_type, name, publication_status, is_based_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, string(node.ID), string(node.Type), node.Name, status, basedOn, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO owner_edges (node_id, user_id) VALUES ($1, $2)
	`, string(node.ID), string(ownerID))
	if err != nil {
		return fmt.Errorf("failed to insert owner edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit node creation: %w", err)
	}

	node.CreatedAt = now
	node.UpdatedAt = now
	return nil
}

// GetOwner returns the owning user of a node. Returns ErrNodeNotFound if
// the node has no owner edge, which for an existing node is an invariant
// violation.
func (s *Store) GetOwner(ctx context.Context, nodeID model.NodeID) (model.UserID, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM owner_edges WHERE node_id = $1`,
		string(nodeID),
	).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", ErrNodeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get owner: %w", err)
	}
	return model.UserID(ownerID), nil
}

// SetOwner atomically replaces the owner edge of a node. The remove and
// add happen inside a single transaction so the node is never observed
// ownerless.
func (s *Store) SetOwner(ctx context.Context, nodeID model.NodeID, userID model.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM owner_edges WHERE node_id = $1`, string(nodeID),
	); err != nil {
		return fmt.Errorf("failed to remove owner edge: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO owner_edges (node_id, user_id) VALUES ($1, $2)`,
		string(nodeID), string(userID),
	); err != nil {
		return fmt.Errorf("failed to add owner edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit owner swap: %w", err)
	}
	return nil
}

// GrantsAt returns the user and group principals holding a grant at
// exactly the given level on a node.
func (s *Store) GrantsAt(ctx context.Context, nodeID model.NodeID, level model.PermissionLevel) ([]model.UserID, []model.GroupID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT principal_id, principal_kind
		FROM permission_edges
		WHERE node_id = $1 AND level = $2
	`, string(nodeID), level.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var users []model.UserID
	var groups []model.GroupID
	for rows.Next() {
		var principalID, kind string
		if err := rows.Scan(&principalID, &kind); err != nil {
			return nil, nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		switch model.PrincipalKind(kind) {
		case model.PrincipalUser:
			users = append(users, model.UserID(principalID))
		case model.PrincipalGroup:
			groups = append(groups, model.GroupID(principalID))
		}
	}
	return users, groups, rows.Err()
}

// AddGrants inserts the given user and group grants on a node as one
// batched transaction. Empty batches are skipped entirely.
func (s *Store) AddGrants(ctx context.Context, nodeID model.NodeID, users []model.UserGrant, groups []model.GroupGrant) error {
	if len(users) == 0 && len(groups) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO permission_edges (node_id, principal_id, principal_kind, level)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare grant insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range users {
		if _, err := stmt.ExecContext(ctx, string(nodeID), string(g.UserID), string(model.PrincipalUser), g.Level.String()); err != nil {
			return fmt.Errorf("failed to add user grant: %w", err)
		}
	}
	for _, g := range groups {
		if _, err := stmt.ExecContext(ctx, string(nodeID), string(g.GroupID), string(model.PrincipalGroup), g.Level.String()); err != nil {
			return fmt.Errorf("failed to add group grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grant additions: %w", err)
	}
	return nil
}

// RemoveGrants deletes the given user and group grants on a node as one
// batched transaction. Empty batches are skipped entirely.
func (s *Store) RemoveGrants(ctx context.Context, nodeID model.NodeID, users []model.UserGrant, groups []model.GroupGrant) error {
	if len(users) == 0 && len(groups) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		DELETE FROM permission_edges
		WHERE node_id = $1 AND principal_id = $2 AND principal_kind = $3 AND level = $4
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare grant delete: %w", err)
	}
	defer stmt.Close()

	for _, g := range users {
		if _, err := stmt.ExecContext(ctx, string(nodeID), string(g.UserID), string(model.PrincipalUser), g.Level.String()); err != nil {
			return fmt.Errorf("failed to remove user grant: %w", err)
		}
	}
	for _, g := range groups {
		if _, err := stmt.ExecContext(ctx, string(nodeID), string(g.GroupID), string(model.PrincipalGroup), g.Level.String()); err != nil {
			return fmt.Errorf("failed to remove group grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grant removals: %w", err)
	}
	return nil
}

// CreateUser inserts a user principal.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, is_admin) VALUES ($1, $2, $3, $4)
	`, string(user.ID), user.Username, user.Email, user.IsAdmin)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil without error on a miss.
func (s *Store) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var user model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, is_admin FROM users WHERE id = $1`,
		string(id),
	).Scan(&user.ID, &user.Username, &user.Email, &user.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// UserExists reports whether a user principal exists.
func (s *Store) UserExists(ctx context.Context, id model.UserID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = $1`, string(id),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return true, nil
}

// CreateGroup inserts a group principal.
func (s *Store) CreateGroup(ctx context.Context, group *model.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name) VALUES ($1, $2)
	`, string(group.ID), group.Name)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GroupExists reports whether a group principal exists.
func (s *Store) GroupExists(ctx context.Context, id model.GroupID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM groups WHERE id = $1`, string(id),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check group existence: %w", err)
	}
	return true, nil
}

// AddGroupMember adds a user to a group. Membership is flat; groups do
// not nest.
func (s *Store) AddGroupMember(ctx context.Context, groupID model.GroupID, userID model.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
	`, string(groupID), string(userID))
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// GroupsForUser returns the groups a user is a direct member of.
func (s *Store) GroupsForUser(ctx context.Context, userID model.UserID) ([]model.GroupID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE user_id = $1`,
		string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query group membership: %w", err)
	}
	defer rows.Close()

	var groups []model.GroupID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group membership: %w", err)
		}
		groups = append(groups, model.GroupID(id))
	}
	return groups, rows.Err()
}

// LinkVersion records that newerID was created as the next version of
// olderID.
func (s *Store) LinkVersion(ctx context.Context, olderID, newerID model.NodeID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO version_edges (previous_version_id, node_id) VALUES ($1, $2)
	`, string(olderID), string(newerID))
	if err != nil {
		return fmt.Errorf("failed to link versions: %w", err)
	}
	return nil
}

// HasNewerVersion reports whether any node links back to this one as its
// previous version. Publishing and drafting are only permitted on the
// latest version of a chain.
func (s *Store) HasNewerVersion(ctx context.Context, nodeID model.NodeID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM version_edges WHERE previous_version_id = $1`,
		string(nodeID),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check version links: %w", err)
	}
	return true, nil
}

// SetPublicationStatus updates the publication status of a node. The
// eligibility check is the caller's responsibility.
func (s *Store) SetPublicationStatus(ctx context.Context, nodeID model.NodeID, status model.PublicationStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET publication_status = $1, updated_at = $2 WHERE id = $3
	`, string(status), time.Now().UTC(), string(nodeID))
	if err != nil {
		return fmt.Errorf("failed to set publication status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNodeNotFound
	}
	return nil
}

// AccessibleNodeIDs returns every node the user can reach through
// ownership, a direct grant, or a grant to one of their groups.
func (s *Store) AccessibleNodeIDs(ctx context.Context, userID model.UserID) ([]model.NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id FROM owner_edges WHERE user_id = $1
		UNION
		SELECT node_id FROM permission_edges WHERE principal_id = $1 AND principal_kind = 'user'
		UNION
		SELECT pe.node_id
		FROM permission_edges pe
		JOIN group_members gm ON pe.principal_id = gm.group_id
		WHERE pe.principal_kind = 'group' AND gm.user_id = $1
	`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to query accessible nodes: %w", err)
	}
	defer rows.Close()

	var ids []model.NodeID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, model.NodeID(id))
	}
	return ids, rows.Err()
}

// ListNodeIDs returns every node ID in the store. Used by the full
// reconciliation sweep.
func (s *Store) ListNodeIDs(ctx context.Context) ([]model.NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var ids []model.NodeID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, model.NodeID(id))
	}
	return ids, rows.Err()
}
