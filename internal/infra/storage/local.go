package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// WorkFileName is the object name every submission is stored under.
const WorkFileName = "work.zip"

// LocalStore keeps submissions on the local filesystem under <dir>/<accountID>/work.zip.
type LocalStore struct {
	dir     string
	tempDir string
	logger  *zap.Logger
}

// NewLocalStore creates the upload directory if needed. tempDir defaults to dir so the
// final rename never crosses filesystems.
func NewLocalStore(dir, tempDir string, log *zap.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if tempDir == "" {
		tempDir = dir
	}
	for _, d := range []string{dir, tempDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return &LocalStore{dir: dir, tempDir: tempDir, logger: log}, nil
}

// Put streams the body to a temporary file and renames it over the previous upload,
// so a failed upload never leaves a partial work.zip behind.
func (s *LocalStore) Put(ctx context.Context, accountID string, body io.Reader, size int64) (string, error) {
	if err := validAccountID(accountID); err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, accountID)
	if err := os.MkdirAll(target, 0o750); err != nil {
		return "", fmt.Errorf("create account directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.tempDir, "upload-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("short upload: wrote %d of %d bytes", written, size)
	}

	location := filepath.Join(target, WorkFileName)
	if err := os.Rename(tmpName, location); err != nil {
		return "", fmt.Errorf("move upload into place: %w", err)
	}

	s.logger.Debug("submission stored", zap.String("account_id", accountID), zap.Int64("bytes", written))
	return location, nil
}

func validAccountID(accountID string) error {
	if accountID == "" || accountID == "." || accountID == ".." || filepath.Base(accountID) != accountID {
		return fmt.Errorf("invalid account id %q", accountID)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
