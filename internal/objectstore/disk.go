package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DiskStore keeps objects as files under a root directory.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates root if needed. baseURL is the public prefix objects are served under.
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

func (s *DiskStore) fullPath(p string) (string, string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *DiskStore) Upload(ctx context.Context, p string, blob []byte, contentType string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	cleaned, full, err := s.fullPath(p)
	if err != nil {
		return Handle{}, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return Handle{}, fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return Handle{}, fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Handle{}, fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Handle{}, fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return Handle{}, fmt.Errorf("commit object: %w", err)
	}

	return Handle{Path: cleaned, Size: int64(len(blob)), ContentType: contentType}, nil
}

// ResolveURL returns the public URL for h under the configured base URL.
func (s *DiskStore) ResolveURL(_ context.Context, h Handle) (string, error) {
	cleaned, err := cleanPath(h.Path)
	if err != nil {
		return "", err
	}
	segments := strings.Split(cleaned, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/"), nil
}

func (s *DiskStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *DiskStore) Open(_ context.Context, p string) (io.ReadCloser, *Object, error) {
	cleaned, full, err := s.fullPath(p)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open object: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, &Object{Path: cleaned, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Walk calls fn for every object under prefix. Temp files are skipped.
func (s *DiskStore) Walk(ctx context.Context, prefix string, fn func(Object) error) error {
	cleaned, full, err := s.fullPath(prefix)
	if err != nil {
		return err
	}
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(full, p)
		if err != nil {
			return err
		}
		return fn(Object{
			Path:    path.Join(cleaned, filepath.ToSlash(rel)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
