package service

import (
	"path/filepath"
	"strings"

	"github.com/parsey/docpreview/internal/config"
)

// UploadPolicy enforces the extension whitelist and size limit before a file
// reaches the decoder or a backend.
type UploadPolicy struct {
	maxBytes   int64
	extensions map[string]bool
	allowed    []string
}

func NewUploadPolicy(cfg *config.UploadConfig) *UploadPolicy {
	p := &UploadPolicy{
		maxBytes:   cfg.MaxSizeBytes(),
		extensions: make(map[string]bool, len(cfg.Extensions)),
		allowed:    append([]string(nil), cfg.Extensions...),
	}
	for _, ext := range cfg.Extensions {
		p.extensions[strings.ToLower(ext)] = true
	}
	return p
}

// MaxBytes returns the upload limit
func (p *UploadPolicy) MaxBytes() int64 {
	return p.maxBytes
}

// Check validates a file by name and size
func (p *UploadPolicy) Check(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !p.extensions[ext] {
		return &UploadError{Err: ErrUnsupportedExtension, FileName: name, Allowed: p.allowed}
	}
	if size <= 0 {
		return &UploadError{Err: ErrEmptyFile, FileName: name}
	}
	if size > p.maxBytes {
		return &UploadError{Err: ErrFileTooLarge, FileName: name, Size: size, MaxSize: p.maxBytes}
	}
	return nil
}
