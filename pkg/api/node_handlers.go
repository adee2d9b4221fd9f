package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/arborhq/arbor/pkg/contextkeys"
	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/httputil"
	"github.com/arborhq/arbor/pkg/model"
)

var validNodeTypes = map[model.NodeType]bool{
	model.NodeTypeFolder:   true,
	model.NodeTypeTemplate: true,
	model.NodeTypeElement:  true,
	model.NodeTypeField:    true,
	model.NodeTypeInstance: true,
}

// createNode handles POST /api/v1/nodes. The caller becomes the owner;
// the owner edge is written in the same transaction as the node.
func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())

	var req CreateNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	nodeType := model.NodeType(req.Type)
	if !validNodeTypes[nodeType] {
		httputil.WriteBadRequest(w, "invalid node type: "+req.Type)
		return
	}

	node := &model.Node{
		ID:                model.NodeID(req.ID),
		Type:              nodeType,
		Name:              req.Name,
		PublicationStatus: model.PublicationStatus(req.PublicationStatus),
		IsBasedOn:         model.NodeID(req.IsBasedOn),
	}
	if node.ID == "" {
		node.ID = model.NewNodeID()
	}
	if nodeType.IsVersioned() && node.PublicationStatus == "" {
		node.PublicationStatus = model.StatusDraft
	}

	if err := s.store.CreateNode(r.Context(), node, userID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	s.enqueueSync(r.Context(), node.ID)

	httputil.WriteCreated(w, node)
}

// enqueueSync requests a search-index sync for the node. A lost event
// is tolerable: the periodic reconciliation sweep converges the index.
func (s *Server) enqueueSync(ctx context.Context, nodeID model.NodeID) {
	if s.events == nil {
		return
	}
	if err := s.events.EnqueuePermissionSync(ctx, nodeID); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("node_id", string(nodeID)).
				Warn("failed to enqueue sync event for new node")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.SyncEventsEnqueuedTotal.Inc()
	}
}

// getNode handles GET /api/v1/nodes/{id}. Requires read access.
func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	nodeID := model.NodeID(httputil.PathVar(r, "id"))
	userID := contextkeys.GetUserID(r.Context())

	node, err := s.store.GetNode(r.Context(), nodeID)
	if errors.Is(err, graph.ErrNodeNotFound) {
		httputil.WriteNotFound(w, reasonNodeNotFound, "node "+string(nodeID)+" not found")
		return
	}
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}

	ok, err := s.resolver.HasRead(r.Context(), userID, nodeID)
	if err != nil {
		writePermissionError(w, err)
		return
	}
	if !ok {
		httputil.WriteForbidden(w, "read access required")
		return
	}

	httputil.WriteSuccess(w, node)
}
