package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxAvatarSize = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("avatar too large")
	ErrBadSignature    = errors.New("invalid or expired avatar link")
	ErrNotFound        = errors.New("avatar not found")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// AvatarStore keeps avatar images on disk and hands out time-limited signed links.
type AvatarStore struct {
	dir     string
	secret  []byte
	baseURL string
}

func NewAvatarStore(dir, secret, baseURL string) (*AvatarStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar dir: %w", err)
	}
	return &AvatarStore{dir: dir, secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes the image under a fresh random name and returns that name.
func (s *AvatarStore) Save(r io.Reader, contentType string) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create avatar: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxAvatarSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > MaxAvatarSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return name, nil
}

// Open returns the file for a stored name. Names are never treated as paths.
func (s *AvatarStore) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *AvatarStore) SignedURL(name string, ttl time.Duration, now time.Time) string {
	exp := strconv.FormatInt(now.Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("exp", exp)
	q.Set("sig", s.sign(name, exp))
	return s.baseURL + "/avatars/" + url.PathEscape(name) + "?" + q.Encode()
}

func (s *AvatarStore) Verify(name, exp, sig string, now time.Time) error {
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || now.Unix() > expUnix {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(name, exp))) {
		return ErrBadSignature
	}
	return nil
}

func (s *AvatarStore) sign(name, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(name + "|" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}
