package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/medinor/dashboard/model"
)

// rawImage accepts both image shapes the backend has used.
type rawImage struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	URL     string `json:"url"`
	IsMain  *bool  `json:"isMain"`
	Role    string `json:"role"`
}

func (r rawImage) normalize() model.ProductImage {
	img := model.ProductImage{ID: r.ID, URL: r.URL}
	if img.ID == "" {
		img.ID = r.MongoID
	}
	if r.IsMain != nil {
		img.IsMain = *r.IsMain
	} else {
		img.IsMain = r.Role == "main"
	}
	return img
}

// decodeImages accepts a bare array or one wrapped in "images" or "data".
func decodeImages(raw json.RawMessage) ([]model.ProductImage, error) {
	var list []rawImage
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Images []rawImage `json:"images"`
			Data   []rawImage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		list = wrapped.Images
		if list == nil {
			list = wrapped.Data
		}
	}
	out := make([]model.ProductImage, 0, len(list))
	for _, r := range list {
		out = append(out, r.normalize())
	}
	return out, nil
}

// ListImages returns a product's images.
func (c *Client) ListImages(ctx context.Context, productID string) ([]model.ProductImage, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:     "images.list",
		method: http.MethodGet,
		path:   escapePath(model.EntityProducts, productID, "images"),
	}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []model.ProductImage{}, nil
	}
	images, err := decodeImages(raw)
	if err != nil {
		return nil, model.NewBackendRejectedError(http.StatusOK, "The server returned an unreadable image list")
	}
	return images, nil
}

// UploadImage sends one image as multipart field "image".
func (c *Client) UploadImage(ctx context.Context, productID, fileName string, data io.Reader) (model.ProductImage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(fileName))
	if err != nil {
		return model.ProductImage{}, model.NewClientMisconfiguredError()
	}
	if _, err := io.Copy(part, data); err != nil {
		return model.ProductImage{}, model.NewBadRequestError("could not read the image")
	}
	if err := w.Close(); err != nil {
		return model.ProductImage{}, model.NewClientMisconfiguredError()
	}

	var raw json.RawMessage
	err = c.do(ctx, call{
		op:          "images.upload",
		method:      http.MethodPost,
		path:        escapePath(model.EntityProducts, productID, "images"),
		raw:         buf.Bytes(),
		contentType: w.FormDataContentType(),
		upload:      true,
	}, &raw)
	if err != nil {
		return model.ProductImage{}, err
	}

	var wrapped struct {
		Image *rawImage `json:"image"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && wrapped.Image != nil {
		return wrapped.Image.normalize(), nil
	}
	var img rawImage
	if err := json.Unmarshal(raw, &img); err != nil {
		return model.ProductImage{}, model.NewBackendRejectedError(http.StatusOK, "The server returned an unreadable image")
	}
	return img.normalize(), nil
}

// DeleteImage removes an image.
func (c *Client) DeleteImage(ctx context.Context, productID, imageID string) error {
	return c.do(ctx, call{
		op:     "images.delete",
		method: http.MethodDelete,
		path:   escapePath(model.EntityProducts, productID, "images", imageID),
	}, nil)
}

// SetMainImage marks an image as the product's main image.
func (c *Client) SetMainImage(ctx context.Context, productID, imageID string) error {
	return c.do(ctx, call{
		op:     "images.set_main",
		method: http.MethodPatch,
		path:   escapePath(model.EntityProducts, productID, "images", imageID, "main"),
	}, nil)
}
