package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/model"
)

const maxJSONBody = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleLogin(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		body.Username = strings.TrimSpace(body.Username)
		if body.Username == "" || body.Password == "" {
			WriteError(w, model.NewBadRequestError("username and password are required"))
			return
		}

		res, err := b.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// handleLogout drops the caller's list caches. The token itself is
// stateless and simply discarded by the frontend.
func handleLogout(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		lists.Drop(rctx.SubjectID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}
