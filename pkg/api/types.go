package api

import (
	"fmt"

	"github.com/arborhq/arbor/pkg/model"
)

// UserGrantDTO is the wire form of a user grant. Levels travel as
// strings ("read", "write"), never as enum ordinals.
type UserGrantDTO struct {
	UserID string `json:"user_id"`
	Level  string `json:"level"`
}

// GroupGrantDTO is the wire form of a group grant.
type GroupGrantDTO struct {
	GroupID string `json:"group_id"`
	Level   string `json:"level"`
}

// PermissionSetDTO is the wire form of a node's authoritative
// permission state, used both in GET responses and PUT requests.
type PermissionSetDTO struct {
	Owner       string          `json:"owner"`
	UserGrants  []UserGrantDTO  `json:"user_grants"`
	GroupGrants []GroupGrantDTO `json:"group_grants"`
}

// CreateNodeRequest is the body of POST /nodes. The caller becomes the
// owner.
type CreateNodeRequest struct {
	ID                string `json:"id,omitempty"`
	Type              string `json:"type"`
	Name              string `json:"name"`
	PublicationStatus string `json:"publication_status,omitempty"`
	IsBasedOn         string `json:"is_based_on,omitempty"`
}

// UpdateResultDTO reports the deltas a permission update applied.
type UpdateResultDTO struct {
	OwnerChanged       bool            `json:"owner_changed"`
	AddedUserGrants    []UserGrantDTO  `json:"added_user_grants"`
	RemovedUserGrants  []UserGrantDTO  `json:"removed_user_grants"`
	AddedGroupGrants   []GroupGrantDTO `json:"added_group_grants"`
	RemovedGroupGrants []GroupGrantDTO `json:"removed_group_grants"`
}

// AccessibleNodesResponse lists every node the caller can reach.
type AccessibleNodesResponse struct {
	NodeIDs []model.NodeID `json:"node_ids"`
}

func toPermissionSetDTO(set *model.NodePermissionSet) PermissionSetDTO {
	dto := PermissionSetDTO{
		Owner:       string(set.Owner),
		UserGrants:  []UserGrantDTO{},
		GroupGrants: []GroupGrantDTO{},
	}
	for _, g := range set.UserGrants {
		dto.UserGrants = append(dto.UserGrants, UserGrantDTO{
			UserID: string(g.UserID),
			Level:  g.Level.String(),
		})
	}
	for _, g := range set.GroupGrants {
		dto.GroupGrants = append(dto.GroupGrants, GroupGrantDTO{
			GroupID: string(g.GroupID),
			Level:   g.Level.String(),
		})
	}
	return dto
}

func fromPermissionSetDTO(dto PermissionSetDTO) (model.NodePermissionSet, error) {
	set := model.NodePermissionSet{Owner: model.UserID(dto.Owner)}

	for _, g := range dto.UserGrants {
		level := model.ParsePermissionLevel(g.Level)
		if level == model.PermissionNone {
			return set, fmt.Errorf("invalid permission level %q for user %s", g.Level, g.UserID)
		}
		set.UserGrants = append(set.UserGrants, model.UserGrant{
			UserID: model.UserID(g.UserID),
			Level:  level,
		})
	}
	for _, g := range dto.GroupGrants {
		level := model.ParsePermissionLevel(g.Level)
		if level == model.PermissionNone {
			return set, fmt.Errorf("invalid permission level %q for group %s", g.Level, g.GroupID)
		}
		set.GroupGrants = append(set.GroupGrants, model.GroupGrant{
			GroupID: model.GroupID(g.GroupID),
			Level:   level,
		})
	}
	return set, nil
}

func toUserGrantDTOs(grants []model.UserGrant) []UserGrantDTO {
	dtos := []UserGrantDTO{}
	for _, g := range grants {
		dtos = append(dtos, UserGrantDTO{UserID: string(g.UserID), Level: g.Level.String()})
	}
	return dtos
}

func toGroupGrantDTOs(grants []model.GroupGrant) []GroupGrantDTO {
	dtos := []GroupGrantDTO{}
	for _, g := range grants {
		dtos = append(dtos, GroupGrantDTO{GroupID: string(g.GroupID), Level: g.Level.String()})
	}
	return dtos
}
