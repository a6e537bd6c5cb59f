// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package media moves locally captured images and videos to remote blob
// storage and hands back their public URLs.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Source reads the bytes behind a local media path.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// FileSource reads from the local filesystem.
type FileSource struct{}

func (FileSource) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// IsLocal reports whether ref points at on-device media that still needs to be
// uploaded. Empty references and http(s) URLs are not local.
func IsLocal(ref string) bool {
	if ref == "" {
		return false
	}
	lower := strings.ToLower(ref)
	return !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://")
}

// LocalPath strips a file:// scheme from ref.
func LocalPath(ref string) string {
	if len(ref) >= 7 && strings.EqualFold(ref[:7], "file://") {
		return ref[7:]
	}
	return ref
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"heic": "image/heic",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"m4v":  "video/x-m4v",
}

// Extension returns the lower-case file extension of path, "jpg" when absent.
func Extension(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "jpg"
	}
	return ext
}

// ContentType maps an extension to a MIME type, image/jpeg when unknown.
func ContentType(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "image/jpeg"
}

// Recorder observes upload outcomes.
type Recorder interface {
	ObserveUpload(bucket string, ok bool)
}

// Externalizer uploads local media references.
type Externalizer struct {
	storage  Storage
	source   Source
	logger   *slog.Logger
	recorder Recorder
	newName  func() string
}

// Option customizes an Externalizer.
type Option func(*Externalizer)

// WithSource replaces the file reader.
func WithSource(src Source) Option { return func(e *Externalizer) { e.source = src } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Externalizer) { e.logger = l } }

// WithRecorder sets the upload metrics recorder.
func WithRecorder(r Recorder) Option { return func(e *Externalizer) { e.recorder = r } }

// WithNameFunc replaces the object name generator.
func WithNameFunc(fn func() string) Option { return func(e *Externalizer) { e.newName = fn } }

// NewExternalizer creates an Externalizer writing to storage.
func NewExternalizer(storage Storage, opts ...Option) *Externalizer {
	e := &Externalizer{
		storage: storage,
		source:  FileSource{},
		logger:  slog.Default(),
		newName: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Upload moves localRef into bucket under the user's folder and returns its
// public URL. References that are not local come back unchanged with ok=true
// and are never uploaded. Any failure is logged and reported as ok=false;
// Upload never returns an error or panics, so the caller can keep the local
// reference and retry on a later pass.
func (e *Externalizer) Upload(ctx context.Context, localRef, userID, bucket string) (url string, ok bool) {
	if !IsLocal(localRef) {
		return localRef, true
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Media upload panicked", "bucket", bucket, "ref", localRef, "panic", fmt.Sprint(r))
			url, ok = "", false
		}
		if e.recorder != nil {
			e.recorder.ObserveUpload(bucket, ok)
		}
	}()

	path := LocalPath(localRef)
	data, err := e.source.ReadFile(path)
	if err != nil {
		e.logger.Warn("Media upload failed: cannot read local file", "bucket", bucket, "ref", localRef, "error", err)
		return "", false
	}

	ext := Extension(path)
	objectPath := fmt.Sprintf("%s/%s.%s", userID, e.newName(), ext)
	stored, err := e.storage.Upload(ctx, bucket, objectPath, data, ContentType(ext))
	if err != nil {
		e.logger.Warn("Media upload failed", "bucket", bucket, "ref", localRef, "error", err)
		return "", false
	}

	url = e.storage.PublicURL(bucket, stored)
	e.logger.Debug("Media upload succeeded", "bucket", bucket, "url", url)
	return url, true
}
