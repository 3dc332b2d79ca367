package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/httpx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/openai"
)

const defaultMaxImageBytes = 20 << 20

// Formats the remote vision endpoint accepts as-is. Anything else that
// decodes is converted to PNG before upload.
var passthroughFormats = map[string]bool{"png": true, "jpeg": true, "gif": true, "webp": true}

type ArtifactConfig struct {
	// PublicBaseURL resolves relative references such as /uploads/x.png.
	PublicBaseURL string
	TempDir       string
	MaxBytes      int64
	HTTPClient    *http.Client
}

// ArtifactUploader turns an image reference into a remote file handle.
type ArtifactUploader struct {
	api     openai.AssistantClient
	figures FigureStore
	cfg     ArtifactConfig
	log     *logger.Logger

	mu       sync.Mutex
	inflight map[string]*figureLock
}

// figureLock serializes uploads for one figure. refs counts holders and
// waiters; the entry is removed when it drops to zero.
type figureLock struct {
	mu   sync.Mutex
	refs int
}

func NewArtifactUploader(api openai.AssistantClient, figures FigureStore, cfg ArtifactConfig, baseLog *logger.Logger) *ArtifactUploader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxImageBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ArtifactUploader{
		api:      api,
		figures:  figures,
		cfg:      cfg,
		log:      baseLog.With("service", "ArtifactUploader"),
		inflight: map[string]*figureLock{},
	}
}

// EnsureForFigure returns the figure's cached handle, uploading its image and
// persisting the handle on first use.
func (u *ArtifactUploader) EnsureForFigure(ctx context.Context, f *types.Figure) (string, error) {
	if f.ImageFileID != "" {
		return f.ImageFileID, nil
	}
	if !f.HasImage() {
		return "", fmt.Errorf("%w: figure %s has no image", errs.ErrInvalidInput, f.ID)
	}
	// img_url may already be a remote file handle.
	if ref := strings.TrimSpace(f.ImgURL); IsFileHandle(ref) {
		return ref, nil
	}

	release := u.lockFigure(f.ID.String())
	defer release()

	// Another caller may have uploaded while we waited.
	dbc := dbctx.New(ctx)
	fresh, err := u.figures.GetByID(dbc, f.ID)
	if err != nil {
		return "", err
	}
	if fresh.ImageFileID != "" {
		f.ImageFileID = fresh.ImageFileID
		return fresh.ImageFileID, nil
	}

	fileID, err := u.Resolve(ctx, fresh.ImgURL)
	if err != nil {
		return "", err
	}
	if _, err := u.figures.UpdateFields(dbc, f.ID, map[string]interface{}{"image_file_id": fileID}); err != nil {
		u.log.Warn("Persist image_file_id failed", "figure_id", f.ID, "file_id", fileID, "error", err)
	}
	f.ImageFileID = fileID
	return fileID, nil
}

// IsFileHandle reports whether ref is a remote file id rather than an image
// location.
func IsFileHandle(ref string) bool {
	return strings.HasPrefix(ref, "file-") && !strings.ContainsAny(ref, "/:")
}

func (u *ArtifactUploader) lockFigure(key string) (release func()) {
	u.mu.Lock()
	l, ok := u.inflight[key]
	if !ok {
		l = &figureLock{}
		u.inflight[key] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.inflight, key)
		}
		u.mu.Unlock()
	}
}

// Resolve fetches or decodes imageRef and uploads it, returning the remote
// file id. It does not cache.
func (u *ArtifactUploader) Resolve(ctx context.Context, imageRef string) (string, error) {
	ref := strings.TrimSpace(imageRef)
	if ref == "" {
		return "", fmt.Errorf("%w: empty image reference", errs.ErrInvalidInput)
	}

	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		raw, err = decodeDataURI(ref)
	} else {
		raw, err = u.fetch(ctx, ref)
	}
	if err != nil {
		return "", err
	}

	body, ext, err := normalizeImage(raw)
	if err != nil {
		return "", err
	}
	return u.upload(ctx, body, ext)
}

func decodeDataURI(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data uri", errs.ErrFetchFailed)
	}
	meta, payload := ref[5:comma], ref[comma+1:]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, fmt.Errorf("%w: data uri is not base64 encoded", errs.ErrFetchFailed)
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, payload)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode data uri: %v", errs.ErrFetchFailed, err)
	}
	return raw, nil
}

func (u *ArtifactUploader) resolveURL(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: invalid image url %q", errs.ErrFetchFailed, ref)
	}
	if parsed.IsAbs() {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", fmt.Errorf("%w: unsupported image url scheme %q", errs.ErrFetchFailed, parsed.Scheme)
		}
		return parsed.String(), nil
	}
	if u.cfg.PublicBaseURL == "" {
		return "", fmt.Errorf("%w: relative image url %q and no public base url", errs.ErrFetchFailed, ref)
	}
	base, err := url.Parse(strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("%w: invalid public base url", errs.ErrFetchFailed)
	}
	return base.ResolveReference(parsed).String(), nil
}

func (u *ArtifactUploader) fetch(ctx context.Context, ref string) ([]byte, error) {
	target, err := u.resolveURL(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", httpx.BrowserUserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := u.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", errs.ErrFetchFailed, target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: get %s: http %d", errs.ErrFetchFailed, target, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, u.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errs.ErrFetchFailed, target, err)
	}
	if int64(len(raw)) > u.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", errs.ErrFetchFailed, u.cfg.MaxBytes)
	}
	return raw, nil
}

// normalizeImage sniffs the format and converts anything the remote side
// cannot read into PNG.
func normalizeImage(raw []byte) ([]byte, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: unrecognized image data: %v", errs.ErrFetchFailed, err)
	}
	if passthroughFormats[format] {
		return raw, extFor(format), nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", errs.ErrFetchFailed, format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("%w: re-encode %s as png: %v", errs.ErrFetchFailed, format, err)
	}
	return buf.Bytes(), "png", nil
}

func extFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// upload stages body in a temp file, which the SDK streams as multipart and
// names the part after. The file is removed on every path.
func (u *ArtifactUploader) upload(ctx context.Context, body []byte, ext string) (string, error) {
	tmp, err := os.CreateTemp(u.cfg.TempDir, "figure-*."+ext)
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", errs.ErrUploadFailed, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(body); err != nil {
		return "", fmt.Errorf("%w: write temp file: %v", errs.ErrUploadFailed, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("%w: rewind temp file: %v", errs.ErrUploadFailed, err)
	}

	fileID, err := u.api.UploadFile(ctx, tmp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrUploadFailed, err)
	}
	u.log.Info("Uploaded image", "file_id", fileID, "bytes", len(body), "format", ext)
	return fileID, nil
}
