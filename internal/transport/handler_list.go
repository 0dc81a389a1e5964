package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/model"
)

// listHandle resolves the caller's cache for the {entity} route parameter.
func listHandle(w http.ResponseWriter, r *http.Request, lists *crud.Registry) (crud.Handle, bool) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return nil, false
	}
	h, err := lists.Get(rctx, chi.URLParam(r, "entity"))
	if err != nil {
		WriteError(w, err)
		return nil, false
	}
	return h, true
}

// inState reports whether the cache recorded err in its own state. Those
// errors are rendered in the list banner; the rest are request errors.
func inState(err error) bool {
	switch model.CodeOf(err) {
	case model.ErrBackendRejected, model.ErrBackendUnavailable, model.ErrBackendTimeout, model.ErrOperationMissing:
		return true
	default:
		return false
	}
}

func writeList(w http.ResponseWriter, status int, h crud.Handle, err error) {
	if err != nil && !inState(err) {
		WriteError(w, err)
		return
	}
	WriteJSON(w, status, h.View())
}

func handleListGet(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		var err error
		if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
			err = h.Fetch(r.Context())
		}
		writeList(w, http.StatusOK, h, err)
	}
}

func handleListQuery(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		var patch model.QueryPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, http.StatusOK, h, h.ApplyPatch(r.Context(), patch))
	}
}

func handleListClearError(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		h.ClearError()
		writeList(w, http.StatusOK, h, nil)
	}
}

func handleListAdd(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		var raw json.RawMessage
		if err := decodeJSON(w, r, &raw); err != nil {
			WriteError(w, err)
			return
		}
		err := h.Add(r.Context(), raw)
		status := http.StatusCreated
		if err != nil {
			status = http.StatusOK
		}
		writeList(w, status, h, err)
	}
}

func handleListGetItem(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		writeList(w, http.StatusOK, h, h.FetchOne(r.Context(), chi.URLParam(r, "id")))
	}
}

func handleListEdit(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		var raw json.RawMessage
		if err := decodeJSON(w, r, &raw); err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, http.StatusOK, h, h.Edit(r.Context(), chi.URLParam(r, "id"), raw))
	}
}

func handleListTrackEdit(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		var raw json.RawMessage
		if err := decodeJSON(w, r, &raw); err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, http.StatusOK, h, h.TrackEdit(raw))
	}
}

func handleListSaveEdits(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		writeList(w, http.StatusOK, h, h.SaveEdits(r.Context()))
	}
}

func handleListCancelEdits(lists *crud.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := listHandle(w, r, lists)
		if !ok {
			return
		}
		writeList(w, http.StatusOK, h, h.CancelEdits(r.Context()))
	}
}
