package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(logger.Nop(), t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)

	obj, err := s.Put(ctx, "figures/202610/a.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "figures/202610/a.png", obj.Key)
	assert.Equal(t, "http://localhost:8080/uploads/figures/202610/a.png", obj.URL)
	assert.Equal(t, int64(9), obj.Size)
	assert.Equal(t, "image/png", obj.ContentType)

	rc, err := s.Open(ctx, obj.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, s.Delete(ctx, obj.Key))
	require.NoError(t, s.Delete(ctx, obj.Key))
	_, err = s.Open(ctx, obj.Key)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(logger.Nop(), t.TempDir(), "")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = s.Open(context.Background(), "..")
	assert.Error(t, err)
	assert.Equal(t, "/uploads/x.png", s.PublicURL("x.png"))
}

func TestNewKey(t *testing.T) {
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	k := NewKey("Diagram.PNG", now)
	assert.True(t, strings.HasPrefix(k, "figures/202610/"), k)
	assert.True(t, strings.HasSuffix(k, ".png"), k)
	assert.NotEqual(t, k, NewKey("Diagram.PNG", now))
	assert.False(t, strings.Contains(NewKey("weird.name?x=1", now), "?"))
}

func TestGCSPublicURL(t *testing.T) {
	cases := []struct {
		name string
		s    *gcsStore
		want string
	}{
		{"default", &gcsStore{mode: ModeGCS, bucket: "figs"}, "https://storage.googleapis.com/figs/a/b.png"},
		{"cdn", &gcsStore{mode: ModeGCS, bucket: "figs", cdnDomain: "cdn.example.com"}, "https://cdn.example.com/a/b.png"},
		{"base", &gcsStore{mode: ModeGCS, bucket: "figs", publicBaseURL: "http://minio:9000"}, "http://minio:9000/figs/a/b.png"},
		{"emulator", &gcsStore{mode: ModeGCSEmulator, bucket: "figs", publicBaseURL: "http://localhost:4443"}, "http://localhost:4443/storage/v1/b/figs/o/a%2Fb.png?alt=media"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.s.PublicURL("/a/b.png"))
		})
	}
}
