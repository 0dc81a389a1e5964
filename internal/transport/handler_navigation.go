package transport

import (
	"net/http"

	"github.com/medinor/dashboard/internal/navigation"
	"github.com/medinor/dashboard/model"
)

func handleNavigation(nav *navigation.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		WriteJSON(w, http.StatusOK, nav.Tree(rctx.Role))
	}
}
