package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arborhq/arbor/pkg/model"
)

// Document is one indexed node: searchable metadata plus the
// denormalized ACL fields used for query-time permission filtering.
type Document struct {
	NodeID      model.NodeID    `json:"node_id"`
	NodeType    model.NodeType  `json:"node_type"`
	Name        string          `json:"name"`
	SummaryText string          `json:"summary_text,omitempty"`
	Owner       model.UserID    `json:"owner"`
	ReadUsers   []model.UserID  `json:"read_users"`
	WriteUsers  []model.UserID  `json:"write_users"`
	ReadGroups  []model.GroupID `json:"read_groups"`
	WriteGroups []model.GroupID `json:"write_groups"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Index stores search documents.
type Index struct {
	db *sql.DB
}

// NewIndex creates a search index over the given database handle.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// Migration is the DDL for the search document store.
const Migration = `
	CREATE TABLE IF NOT EXISTS search_documents (
		node_id VARCHAR(255) PRIMARY KEY,
		node_type VARCHAR(50) NOT NULL,
		name VARCHAR(255) NOT NULL,
		summary_text TEXT,
		owner_id VARCHAR(255),
		read_users TEXT NOT NULL DEFAULT '[]',
		write_users TEXT NOT NULL DEFAULT '[]',
		read_groups TEXT NOT NULL DEFAULT '[]',
		write_groups TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL
	);
`

// Migrate creates the search document table if it does not exist.
// Idempotent; both binaries run it at startup since either may be the
// first to reach a fresh database.
func (i *Index) Migrate(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, Migration); err != nil {
		return fmt.Errorf("failed to create search_documents table: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by node ID. Returns nil without error
// on a miss.
func (i *Index) GetDocument(ctx context.Context, nodeID model.NodeID) (*Document, error) {
	query := `
		SELECT node_id, node_type, name, summary_text, owner_id,
		       read_users, write_users, read_groups, write_groups, updated_at
		FROM search_documents
		WHERE node_id = $1
	`

	var doc Document
	var summary, owner sql.NullString
	var readUsers, writeUsers, readGroups, writeGroups string

	err := i.db.QueryRowContext(ctx, query, string(nodeID)).Scan(
		&doc.NodeID,
		&doc.NodeType,
		&doc.Name,
		&summary,
		&owner,
		&readUsers,
		&writeUsers,
		&readGroups,
		&writeGroups,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if summary.Valid {
		doc.SummaryText = summary.String
	}
	if owner.Valid {
		doc.Owner = model.UserID(owner.String)
	}
	if err := json.Unmarshal([]byte(readUsers), &doc.ReadUsers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal read users: %w", err)
	}
	if err := json.Unmarshal([]byte(writeUsers), &doc.WriteUsers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal write users: %w", err)
	}
	if err := json.Unmarshal([]byte(readGroups), &doc.ReadGroups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal read groups: %w", err)
	}
	if err := json.Unmarshal([]byte(writeGroups), &doc.WriteGroups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal write groups: %w", err)
	}

	return &doc, nil
}

// UpsertDocument writes a full document, replacing any existing one for
// the node.
func (i *Index) UpsertDocument(ctx context.Context, doc *Document) error {
	readUsers, writeUsers, readGroups, writeGroups, err := marshalACL(doc.ReadUsers, doc.WriteUsers, doc.ReadGroups, doc.WriteGroups)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO search_documents (node_id, node_type, name, summary_text, owner_id,
			read_users, write_users, read_groups, write_groups, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (node_id) DO UPDATE SET
			node_type = EXCLUDED.node_type,
			name = EXCLUDED.name,
			summary_text = EXCLUDED.summary_text,
			owner_id = EXCLUDED.owner_id,
			read_users = EXCLUDED.read_users,
			write_users = EXCLUDED.write_users,
			read_groups = EXCLUDED.read_groups,
			write_groups = EXCLUDED.write_groups,
			updated_at = EXCLUDED.updated_at
	`

	_, err = i.db.ExecContext(ctx, query,
		string(doc.NodeID),
		string(doc.NodeType),
		doc.Name,
		doc.SummaryText,
		string(doc.Owner),
		readUsers,
		writeUsers,
		readGroups,
		writeGroups,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// UpdateACLFields rewrites only the access-control fields of an existing
// document. Returns false if no document exists for the node.
func (i *Index) UpdateACLFields(ctx context.Context, nodeID model.NodeID, owner model.UserID,
	readUsers, writeUsers []model.UserID, readGroups, writeGroups []model.GroupID) (bool, error) {

	ru, wu, rg, wg, err := marshalACL(readUsers, writeUsers, readGroups, writeGroups)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE search_documents
		SET owner_id = $1, read_users = $2, write_users = $3,
		    read_groups = $4, write_groups = $5, updated_at = $6
		WHERE node_id = $7
	`

	res, err := i.db.ExecContext(ctx, query,
		string(owner), ru, wu, rg, wg, time.Now().UTC(), string(nodeID),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update ACL fields: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

// DeleteDocument removes a node's document, if present.
func (i *Index) DeleteDocument(ctx context.Context, nodeID model.NodeID) error {
	_, err := i.db.ExecContext(ctx,
		`DELETE FROM search_documents WHERE node_id = $1`, string(nodeID))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func marshalACL(readUsers, writeUsers []model.UserID, readGroups, writeGroups []model.GroupID) (string, string, string, string, error) {
	ru, err := marshalList(readUsers)
	if err != nil {
		return "", "", "", "", err
	}
	wu, err := marshalList(writeUsers)
	if err != nil {
		return "", "", "", "", err
	}
	rg, err := marshalList(readGroups)
	if err != nil {
		return "", "", "", "", err
	}
	wg, err := marshalList(writeGroups)
	if err != nil {
		return "", "", "", "", err
	}
	return ru, wu, rg, wg, nil
}

func marshalList[T ~string](list []T) (string, error) {
	if list == nil {
		list = []T{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ACL list: %w", err)
	}
	return string(data), nil
}
