package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageStore keeps uploaded sauce images on local disk. Files are served
// back under /images/<name>.
type ImageStore struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func NewImageStore(dir string, maxBytes int64, logger *slog.Logger) (*ImageStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

func (s *ImageStore) Dir() string {
	return s.dir
}

// Save validates and writes an uploaded image, returning its public URL
// under baseURL.
func (s *ImageStore) Save(fh *multipart.FileHeader, baseURL string) (string, error) {
	if fh == nil {
		return "", fmt.Errorf("%w: image is required", ErrValidation)
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return "", fmt.Errorf("%w: only image files are allowed", ErrValidation)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExts[ext] {
		return "", fmt.Errorf("%w: unsupported image type %q", ErrValidation, ext)
	}
	if fh.Size > s.maxBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", ErrValidation, s.maxBytes)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + ext
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	// one extra byte tells us the upload lied about its size
	n, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: image exceeds %d bytes", ErrValidation, s.maxBytes)
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", err
	}

	s.logger.Info("image saved", "event", "image_saved", "file", name, "bytes", n)
	return URL(baseURL, name), nil
}

// Remove deletes the file imageURL points at. A file that is already gone
// is not an error.
func (s *ImageStore) Remove(imageURL string) error {
	name := fileName(imageURL)
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", name, err)
	}
	return nil
}

// URL builds <base>/images/<name>.
func URL(base, name string) string {
	return strings.TrimRight(base, "/") + "/images/" + name
}

// fileName extracts the stored file name from an image URL. Anything that
// does not point into /images/ yields "".
func fileName(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	i := strings.LastIndex(p, "/images/")
	if i < 0 {
		return ""
	}
	name := path.Base(p[i+len("/images/"):])
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
