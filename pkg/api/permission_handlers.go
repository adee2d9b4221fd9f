package api

import (
	"net/http"

	"github.com/arborhq/arbor/pkg/auth"
	"github.com/arborhq/arbor/pkg/contextkeys"
	"github.com/arborhq/arbor/pkg/httputil"
	"github.com/arborhq/arbor/pkg/model"
)

// getNodePermissions handles GET /api/v1/nodes/{id}/permissions.
// The caller needs read access to see who else holds access.
func (s *Server) getNodePermissions(w http.ResponseWriter, r *http.Request) {
	nodeID := model.NodeID(httputil.PathVar(r, "id"))
	userID := contextkeys.GetUserID(r.Context())

	ok, err := s.resolver.HasRead(r.Context(), userID, nodeID)
	if err != nil {
		s.countResolution("failure")
		writePermissionError(w, err)
		return
	}
	if !ok {
		httputil.WriteForbidden(w, "read access required to view permissions")
		return
	}

	set, err := s.resolver.Resolve(r.Context(), nodeID)
	if err != nil {
		s.countResolution("failure")
		writePermissionError(w, err)
		return
	}
	s.countResolution("success")

	httputil.WriteSuccess(w, toPermissionSetDTO(set))
}

// updateNodePermissions handles PUT /api/v1/nodes/{id}/permissions.
// Sharing requires write access on the node.
func (s *Server) updateNodePermissions(w http.ResponseWriter, r *http.Request) {
	nodeID := model.NodeID(httputil.PathVar(r, "id"))
	userID := contextkeys.GetUserID(r.Context())

	var dto PermissionSetDTO
	if !httputil.ParseJSONOrError(w, r, &dto) {
		return
	}
	requested, err := fromPermissionSetDTO(dto)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ok, err := s.resolver.HasWrite(r.Context(), userID, nodeID)
	if err != nil {
		writePermissionError(w, err)
		return
	}
	if !ok {
		if s.audit != nil {
			s.audit.LogPermissionChange(r, userID, nodeID, false, auth.StatusDenied)
		}
		httputil.WriteForbidden(w, "write access required to change permissions")
		return
	}

	result, err := s.updater.Update(r.Context(), nodeID, requested)
	if err != nil {
		s.countUpdate("failure")
		if s.audit != nil {
			s.audit.LogPermissionChange(r, userID, nodeID, false, auth.StatusFailure)
		}
		writePermissionError(w, err)
		return
	}
	s.countUpdate("success")
	if s.metrics != nil {
		delta := len(result.AddedUserGrants) + len(result.RemovedUserGrants) +
			len(result.AddedGroupGrants) + len(result.RemovedGroupGrants)
		s.metrics.PermissionUpdateDeltaSize.Observe(float64(delta))
		s.metrics.SyncEventsEnqueuedTotal.Inc()
	}
	if s.audit != nil {
		s.audit.LogPermissionChange(r, userID, nodeID, result.OwnerChanged, auth.StatusSuccess)
	}

	httputil.WriteSuccess(w, UpdateResultDTO{
		OwnerChanged:       result.OwnerChanged,
		AddedUserGrants:    toUserGrantDTOs(result.AddedUserGrants),
		RemovedUserGrants:  toUserGrantDTOs(result.RemovedUserGrants),
		AddedGroupGrants:   toGroupGrantDTOs(result.AddedGroupGrants),
		RemovedGroupGrants: toGroupGrantDTOs(result.RemovedGroupGrants),
	})
}

// getCurrentUserPermissions handles
// GET /api/v1/nodes/{id}/current-user-permissions. The projection is
// fail-closed, so this endpoint never errors on permission grounds; an
// unresolvable node just yields all-false flags.
func (s *Server) getCurrentUserPermissions(w http.ResponseWriter, r *http.Request) {
	nodeID := model.NodeID(httputil.PathVar(r, "id"))
	userID := contextkeys.GetUserID(r.Context())

	perms := s.projector.Project(r.Context(), nodeID, userID)
	httputil.WriteSuccess(w, perms)
}

// listAccessibleNodes handles GET /api/v1/users/me/accessible-nodes.
func (s *Server) listAccessibleNodes(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())

	ids, err := s.store.AccessibleNodeIDs(r.Context(), userID)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}
	if ids == nil {
		ids = []model.NodeID{}
	}
	httputil.WriteSuccess(w, AccessibleNodesResponse{NodeIDs: ids})
}

func (s *Server) countResolution(result string) {
	if s.metrics != nil {
		s.metrics.PermissionResolutionsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) countUpdate(result string) {
	if s.metrics != nil {
		s.metrics.PermissionUpdatesTotal.WithLabelValues(result).Inc()
	}
}
