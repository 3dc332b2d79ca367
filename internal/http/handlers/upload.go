package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/http/response"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/apierr"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/objectstore"
)

const (
	maxUploadBytes = 20 << 20
	sniffBytes     = 512
)

type UploadHandler struct {
	store objectstore.Store
	log   *logger.Logger
	now   func() time.Time
}

func NewUploadHandler(log *logger.Logger, store objectstore.Store) *UploadHandler {
	return &UploadHandler{
		store: store,
		log:   log.With("handler", "UploadHandler"),
		now:   time.Now,
	}
}

// POST /api/upload (multipart field "file")
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondErr(c, apierr.TooLarge(maxUploadBytes))
			return
		}
		response.RespondErr(c, fmt.Errorf("%w: no file uploaded", errs.ErrInvalidInput))
		return
	}
	if fh.Size > maxUploadBytes {
		response.RespondErr(c, apierr.TooLarge(maxUploadBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer f.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	head = head[:n]
	if !isImage(fh.Filename, head) {
		response.RespondErr(c, fmt.Errorf("%w: %s is not an image", errs.ErrInvalidInput, fh.Filename))
		return
	}

	key := objectstore.NewKey(fh.Filename, h.now())
	obj, err := h.store.Put(c.Request.Context(), key, io.MultiReader(bytes.NewReader(head), f))
	if err != nil {
		h.log.Error("Store upload failed", "key", key, "error", err)
		response.RespondErr(c, fmt.Errorf("%w: %v", errs.ErrUploadFailed, err))
		return
	}
	h.log.Info("Image uploaded", "key", obj.Key, "size", obj.Size, "mode", h.store.Mode())
	response.RespondOK(c, gin.H{
		"message":  "File uploaded successfully",
		"url":      obj.URL,
		"filename": path.Base(obj.Key),
		"key":      obj.Key,
		"size":     obj.Size,
	})
}

func isImage(name string, head []byte) bool {
	if strings.HasPrefix(http.DetectContentType(head), "image/") {
		return true
	}
	return strings.EqualFold(path.Ext(name), ".svg") && bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// GET /uploads/*key
func (h *UploadHandler) Serve(c *gin.Context) {
	key, err := objectstore.CleanKey(c.Param("key"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	rc, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		h.log.Warn("Open upload failed", "key", key, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, objectstore.ContentTypeForKey(key), rc, nil)
}
