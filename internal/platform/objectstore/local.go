package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

// LocalRoute is where the HTTP layer serves local uploads from.
const LocalRoute = "/uploads"

type localStore struct {
	log     *logger.Logger
	root    string
	baseURL string
}

func NewLocalStore(log *logger.Logger, dir, publicBaseURL string) (Store, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "./uploads"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	s := &localStore{
		log:     log.With("service", "LocalObjectStore"),
		root:    abs,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
	s.log.Info("Object storage initialized", "mode", ModeLocal, "dir", abs, "public_base_url", s.baseURL)
	return s, nil
}

func (s *localStore) Mode() Mode { return ModeLocal }

func (s *localStore) pathFor(key string) (string, string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *localStore) Put(ctx context.Context, key string, r io.Reader) (*Object, error) {
	k, p, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	cr := &countingReader{r: r}
	if _, err := io.Copy(tmp, cr); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return nil, fmt.Errorf("commit object: %w", err)
	}
	return &Object{Key: k, URL: s.PublicURL(k), Size: cr.n, ContentType: ContentTypeForKey(k)}, nil
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_, p, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return f, err
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_, p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicURL is absolute when a public base URL is configured, otherwise a
// path relative to the service.
func (s *localStore) PublicURL(key string) string {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	return s.baseURL + LocalRoute + "/" + k
}
