package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeID identifies a folder or artifact in the workspace tree.
// It is stable for the lifetime of the node and is the join key between
// the graph store and the search index.
type NodeID string

// NewNodeID mints a fresh node identifier.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// UserID identifies a user principal.
type UserID string

// GroupID identifies a group principal. User and group identifier spaces
// are disjoint.
type GroupID string

// PrincipalKind distinguishes user grants from group grants.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalGroup PrincipalKind = "group"
)

// PermissionLevel is the ordered permission enum. WRITE implies READ for
// authorization checks, but grants at the two levels are stored as
// independent records.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionRead
	PermissionWrite
)

// String returns the wire representation of the permission level.
func (l PermissionLevel) String() string {
	switch l {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	default:
		return "none"
	}
}

// ParsePermissionLevel parses the wire representation of a permission level.
func ParsePermissionLevel(s string) PermissionLevel {
	switch s {
	case "read":
		return PermissionRead
	case "write":
		return PermissionWrite
	default:
		return PermissionNone
	}
}

// Includes reports whether holding this level satisfies a check at the
// other level.
func (l PermissionLevel) Includes(other PermissionLevel) bool {
	return l >= other
}

// NodeType represents the kind of node in the workspace tree.
type NodeType string

const (
	NodeTypeFolder   NodeType = "folder"
	NodeTypeTemplate NodeType = "template"
	NodeTypeElement  NodeType = "element"
	NodeTypeField    NodeType = "field"
	NodeTypeInstance NodeType = "instance"
)

// IsVersioned reports whether this node type participates in the
// draft/published version lifecycle.
func (t NodeType) IsVersioned() bool {
	switch t {
	case NodeTypeTemplate, NodeTypeElement:
		return true
	default:
		return false
	}
}

// PublicationStatus is the publication state of a versionable artifact.
type PublicationStatus string

const (
	StatusDraft     PublicationStatus = "draft"
	StatusPublished PublicationStatus = "published"
)

// Node is the graph store's view of a workspace node.
type Node struct {
	ID                NodeID            `json:"id"`
	Type              NodeType          `json:"type"`
	Name              string            `json:"name"`
	PublicationStatus PublicationStatus `json:"publication_status,omitempty"`
	// IsBasedOn links an instance to the template it was populated from.
	IsBasedOn NodeID    `json:"is_based_on,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a user principal known to the graph store.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
}

// Group is a group principal known to the graph store.
type Group struct {
	ID   GroupID `json:"id"`
	Name string  `json:"name"`
}

// UserGrant is a persisted (user, level) authorization record on a node.
type UserGrant struct {
	UserID UserID          `json:"user_id"`
	Level  PermissionLevel `json:"level"`
}

// GroupGrant is a persisted (group, level) authorization record on a node.
type GroupGrant struct {
	GroupID GroupID         `json:"group_id"`
	Level   PermissionLevel `json:"level"`
}

// NodePermissionSet is the full authoritative permission state of one node:
// the owner plus every user and group grant. It is the unit exchanged
// between the resolution service and the diff engine.
type NodePermissionSet struct {
	Owner       UserID       `json:"owner"`
	UserGrants  []UserGrant  `json:"user_grants"`
	GroupGrants []GroupGrant `json:"group_grants"`
}

// UserGrantSet returns the user grants as a set keyed by (user, level) pair.
func (p NodePermissionSet) UserGrantSet() map[UserGrant]struct{} {
	set := make(map[UserGrant]struct{}, len(p.UserGrants))
	for _, g := range p.UserGrants {
		set[g] = struct{}{}
	}
	return set
}

// GroupGrantSet returns the group grants as a set keyed by (group, level) pair.
func (p NodePermissionSet) GroupGrantSet() map[GroupGrant]struct{} {
	set := make(map[GroupGrant]struct{}, len(p.GroupGrants))
	for _, g := range p.GroupGrants {
		set[g] = struct{}{}
	}
	return set
}

// CurrentUserPermissions is the derived per-(node, user) capability flag
// struct consumed by API responses and denormalized into the search index.
// The zero value is the fail-closed default: no capability at all.
type CurrentUserPermissions struct {
	CanRead        bool `json:"can_read"`
	CanWrite       bool `json:"can_write"`
	CanDelete      bool `json:"can_delete"`
	CanShare       bool `json:"can_share"`
	CanChangeOwner bool `json:"can_change_owner"`
	CanCopy        bool `json:"can_copy"`
	CanPopulate    bool `json:"can_populate"`
	CanPublish     bool `json:"can_publish"`
	CanCreateDraft bool `json:"can_create_draft"`
	CanSubmit      bool `json:"can_submit"`
}
