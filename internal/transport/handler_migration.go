package transport

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/internal/migration"
	"github.com/medinor/dashboard/model"
)

const uploadField = "file"

// writeMigration renders the outcome of a session operation. A failure the
// session recorded is part of its state, so the snapshot carrying the
// error banner is returned instead of an error response.
func writeMigration(w http.ResponseWriter, status int, snap model.MigrationSnapshot, err error) {
	var f *migration.Failure
	if err != nil && !errors.As(err, &f) {
		WriteError(w, err)
		return
	}
	WriteJSON(w, status, snap)
}

// formFile reads one multipart file field, bounded by maxBytes.
func formFile(w http.ResponseWriter, r *http.Request, maxBytes int64, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, model.NewBadRequestError(fmt.Sprintf("file exceeds the %d byte upload limit", tooLarge.Limit))
		}
		return nil, nil, model.NewBadRequestError("expected a multipart/form-data body")
	}
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
	}
	return nil, nil, model.NewBadRequestError(fmt.Sprintf("missing %q file field", fields[0]))
}

func handleMigrationCreate(mgr *migration.Manager, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entity := chi.URLParam(r, "id")
		if !migration.Supported(entity) {
			WriteNotFound(w, fmt.Sprintf("no migration for %q", entity))
			return
		}

		file, header, err := formFile(w, r, maxBytes, uploadField)
		if err != nil {
			WriteError(w, err)
			return
		}
		defer file.Close()

		snap, err := mgr.Create(r.Context(), rctx.SubjectID, entity)
		if err != nil {
			WriteError(w, err)
			return
		}
		snap, err = mgr.Accept(r.Context(), rctx.SubjectID, snap.ID, ingest.File{Name: header.Filename, Data: file})
		writeMigration(w, http.StatusCreated, snap, err)
	}
}

func handleMigrationUpload(mgr *migration.Manager, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		file, header, err := formFile(w, r, maxBytes, uploadField)
		if err != nil {
			WriteError(w, err)
			return
		}
		defer file.Close()

		snap, err := mgr.Accept(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"), ingest.File{Name: header.Filename, Data: file})
		writeMigration(w, http.StatusOK, snap, err)
	}
}

func handleMigrationGet(mgr *migration.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		snap, err := mgr.Get(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
		writeMigration(w, http.StatusOK, snap, err)
	}
}

func handleMigrationProcess(mgr *migration.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		snap, err := mgr.Process(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
		writeMigration(w, http.StatusOK, snap, err)
	}
}

func handleMigrationExecute(mgr *migration.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		snap, err := mgr.Execute(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
		writeMigration(w, http.StatusOK, snap, err)
	}
}

func handleMigrationClear(mgr *migration.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		snap, err := mgr.Clear(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
		writeMigration(w, http.StatusOK, snap, err)
	}
}

func handleMigrationClearError(mgr *migration.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		snap, err := mgr.ClearError(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
		writeMigration(w, http.StatusOK, snap, err)
	}
}
