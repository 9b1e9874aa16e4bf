package images

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalService stores uploads on the local filesystem and serves them from a
// static route under baseURL. It is the default provider for self-hosted
// deployments.
type LocalService struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

var _ Service = (*LocalService)(nil)

// NewLocalService creates a LocalService rooted at dir. Files become
// reachable under baseURL + "/uploads/...". A nil logger falls back to a
// no-op logger.
func NewLocalService(dir, baseURL string, logger *zap.Logger) (*LocalService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory '%s': %w", dir, err)
	}
	return &LocalService{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Root returns the directory uploads are stored under, for static serving.
func (s *LocalService) Root() string { return s.root }

// Upload writes the file under root/folder with a unique name derived from
// the original filename's extension.
func (s *LocalService) Upload(ctx context.Context, file io.Reader, folder, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	folder = filepath.Base(folder)
	name := uuid.New().String() + filepath.Ext(filename)
	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder '%s': %w", folder, err)
	}

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	url := fmt.Sprintf("%s/uploads/%s/%s", s.baseURL, folder, name)
	s.logger.Info("image uploaded", zap.String("url", url))
	return url, nil
}

// Delete removes the file behind the URL if it points into this service's
// upload space; anything else is a no-op.
func (s *LocalService) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := s.baseURL + "/uploads/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}
	rel := filepath.FromSlash(strings.TrimPrefix(url, prefix))
	path := filepath.Join(s.root, rel)
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
