package blob

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *AvatarStore {
	t.Helper()
	s, err := NewAvatarStore(t.TempDir(), "secret", "http://localhost:8080/")
	require.NoError(t, err)
	return s
}

func TestSaveAndOpen(t *testing.T) {
	s := newStore(t)

	name, err := s.Save(strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".png"))

	f, err := s.Open(name)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestSaveRejects(t *testing.T) {
	s := newStore(t)

	_, err := s.Save(strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Save(bytes.NewReader(make([]byte, MaxAvatarSize+1)), "image/jpeg")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"", "../etc/passwd", ".hidden", "a/b.png"} {
		_, err := s.Open(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestSignedURL(t *testing.T) {
	s := newStore(t)
	now := time.Unix(1_700_000_000, 0)

	raw := s.SignedURL("abc.png", time.Hour, now)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/avatars/abc.png", u.Path)

	exp, sig := u.Query().Get("exp"), u.Query().Get("sig")
	assert.NoError(t, s.Verify("abc.png", exp, sig, now.Add(30*time.Minute)))
	assert.ErrorIs(t, s.Verify("abc.png", exp, sig, now.Add(2*time.Hour)), ErrBadSignature)
	assert.ErrorIs(t, s.Verify("other.png", exp, sig, now), ErrBadSignature)
	assert.ErrorIs(t, s.Verify("abc.png", "nope", sig, now), ErrBadSignature)
}
