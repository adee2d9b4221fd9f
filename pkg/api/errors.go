package api

import (
	"errors"
	"net/http"

	"github.com/arborhq/arbor/pkg/httputil"
	"github.com/arborhq/arbor/pkg/permission"
)

// Reason codes not covered by the permission error taxonomy.
const (
	reasonNodeNotFound  = "node_not_found"
	reasonNotAuthorized = "not_authorized"
	reasonPartialUpdate = "partial_update"
)

// writePermissionError maps the permission error taxonomy onto HTTP
// responses with stable reason codes.
func writePermissionError(w http.ResponseWriter, err error) {
	var notFound *permission.NotFoundError
	if errors.As(err, &notFound) {
		httputil.WriteNotFound(w, reasonNodeNotFound, notFound.Error())
		return
	}

	var validation *permission.ValidationError
	if errors.As(err, &validation) {
		httputil.WriteReasonError(w, http.StatusBadRequest, validation.Reason, validation.Message)
		return
	}

	var partial *permission.PartialUpdateError
	if errors.As(err, &partial) {
		// The caller re-issues the same target set; the diff recomputes
		// only what is still missing.
		httputil.WriteReasonError(w, http.StatusInternalServerError, reasonPartialUpdate, partial.Error())
		return
	}

	var unavailable *permission.StoreUnavailableError
	if errors.As(err, &unavailable) {
		httputil.WriteServiceUnavailable(w, unavailable.Error())
		return
	}

	httputil.WriteInternalError(w, err)
}
