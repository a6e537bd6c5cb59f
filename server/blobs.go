// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

var (
	ErrBlobNotFound = errors.New("object not found")
	ErrBadBlobPath  = errors.New("invalid object path")
)

// Buckets accepted by the storage endpoints.
var Buckets = map[string]bool{
	localdb.BucketProgressPhotos: true,
	localdb.BucketWorkoutMedia:   true,
}

// BlobStore persists uploaded media objects.
type BlobStore interface {
	Put(ctx context.Context, bucket, objectPath string, r io.Reader) error
	Open(ctx context.Context, bucket, objectPath string) (io.ReadSeekCloser, time.Time, error)
}

// CleanObjectPath validates an object path and returns it in canonical form.
// Absolute paths and parent references are rejected.
func CleanObjectPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrBadBlobPath, p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrBadBlobPath, p)
		}
	}
	return path.Clean(p), nil
}

// DirBlobStore keeps objects under Root/{bucket}/{path}.
type DirBlobStore struct {
	Root string
}

// NewDirBlobStore creates root if needed.
func NewDirBlobStore(root string) (*DirBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &DirBlobStore{Root: root}, nil
}

func (d *DirBlobStore) file(bucket, objectPath string) (string, error) {
	if !Buckets[bucket] {
		return "", fmt.Errorf("%w: unknown bucket %q", ErrBadBlobPath, bucket)
	}
	clean, err := CleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Root, bucket, filepath.FromSlash(clean)), nil
}

// Put writes the object atomically, replacing an existing one.
func (d *DirBlobStore) Put(_ context.Context, bucket, objectPath string, r io.Reader) error {
	name, err := d.file(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp object: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

// Open returns the object content and modification time.
func (d *DirBlobStore) Open(_ context.Context, bucket, objectPath string) (io.ReadSeekCloser, time.Time, error) {
	name, err := d.file(bucket, objectPath)
	if err != nil {
		return nil, time.Time{}, err
	}
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, ErrBlobNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to open object: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return f, st.ModTime(), nil
}
