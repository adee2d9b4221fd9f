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

// canPublish handles GET /api/v1/nodes/{id}/can-publish.
func (s *Server) canPublish(w http.ResponseWriter, r *http.Request) {
	s.versionEligibility(w, r, s.versions.CanPublish)
}

// canCreateDraft handles GET /api/v1/nodes/{id}/can-create-draft.
func (s *Server) canCreateDraft(w http.ResponseWriter, r *http.Request) {
	s.versionEligibility(w, r, s.versions.CanCreateDraft)
}

// versionEligibility evaluates the ownership gate and then the given
// predicate. A negative outcome is still a 200: eligibility is an
// answer, not an error.
func (s *Server) versionEligibility(w http.ResponseWriter, r *http.Request,
	predicate func(context.Context, *model.Node) (model.OutcomeWithReason, error)) {

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

	gate, err := s.versions.CanVersion(r.Context(), userID, node)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}
	if !gate.Allowed {
		httputil.WriteSuccess(w, gate)
		return
	}

	outcome, err := predicate(r.Context(), node)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, outcome)
}

// publish handles POST /api/v1/nodes/{id}/publish: moves a draft
// artifact to PUBLISHED once the eligibility predicates pass.
func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	node, ok := s.gateVersionTransition(w, r, s.versions.CanPublish)
	if !ok {
		return
	}

	if err := s.store.SetPublicationStatus(r.Context(), node.ID, model.StatusPublished); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	node.PublicationStatus = model.StatusPublished

	httputil.WriteSuccess(w, node)
}

// createDraft handles POST /api/v1/nodes/{id}/create-draft: creates a
// new DRAFT node owned by the caller and links it forward from the
// published source, which then stops being the latest version.
func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	source, ok := s.gateVersionTransition(w, r, s.versions.CanCreateDraft)
	if !ok {
		return
	}
	userID := contextkeys.GetUserID(r.Context())

	draft := &model.Node{
		ID:                model.NewNodeID(),
		Type:              source.Type,
		Name:              source.Name,
		PublicationStatus: model.StatusDraft,
	}
	if err := s.store.CreateNode(r.Context(), draft, userID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := s.store.LinkVersion(r.Context(), source.ID, draft.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	s.enqueueSync(r.Context(), draft.ID)

	httputil.WriteCreated(w, draft)
}

// gateVersionTransition loads the node and runs the ownership gate plus
// the given predicate, writing the error response itself when the
// transition is not allowed. Unlike the eligibility GETs, a negative
// outcome on a transition is a 400 carrying the outcome's reason code.
func (s *Server) gateVersionTransition(w http.ResponseWriter, r *http.Request,
	predicate func(context.Context, *model.Node) (model.OutcomeWithReason, error)) (*model.Node, bool) {

	nodeID := model.NodeID(httputil.PathVar(r, "id"))
	userID := contextkeys.GetUserID(r.Context())

	node, err := s.store.GetNode(r.Context(), nodeID)
	if errors.Is(err, graph.ErrNodeNotFound) {
		httputil.WriteNotFound(w, reasonNodeNotFound, "node "+string(nodeID)+" not found")
		return nil, false
	}
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return nil, false
	}

	gate, err := s.versions.CanVersion(r.Context(), userID, node)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return nil, false
	}
	if !gate.Allowed {
		httputil.WriteReasonError(w, http.StatusBadRequest, string(gate.Reason), "version operation not allowed")
		return nil, false
	}

	outcome, err := predicate(r.Context(), node)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return nil, false
	}
	if !outcome.Allowed {
		httputil.WriteReasonError(w, http.StatusBadRequest, string(outcome.Reason), "version operation not allowed")
		return nil, false
	}

	return node, true
}
