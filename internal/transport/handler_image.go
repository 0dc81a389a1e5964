package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medinor/dashboard/model"
)

func handleImageList(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		images, err := b.ListImages(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"images": images})
	}
}

func handleImageUpload(b Backend, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		file, header, err := formFile(w, r, maxBytes, "image", uploadField)
		if err != nil {
			WriteError(w, err)
			return
		}
		defer file.Close()

		img, err := b.UploadImage(r.Context(), chi.URLParam(r, "id"), header.Filename, file)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, img)
	}
}

func handleImageDelete(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		if err := b.DeleteImage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "imageId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleImageSetMain(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		if err := b.SetMainImage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "imageId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
