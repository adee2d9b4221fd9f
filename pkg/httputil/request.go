package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// ParseJSON decodes the request body into dest.
func ParseJSON(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}

// ParseJSONOrError decodes the request body into dest, writing a 400
// response and returning false on failure.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// PathVar returns a mux path variable.
func PathVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}
