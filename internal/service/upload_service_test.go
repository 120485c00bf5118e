package service

import (
	"errors"
	"testing"
)

func TestUploadPolicy_Check(t *testing.T) {
	p := testUploadPolicy()

	tests := []struct {
		name string
		file string
		size int64
		want error
	}{
		{"pdf", "paper.pdf", 1024, nil},
		{"uppercase tiff", "SCAN.TIFF", 1024, nil},
		{"docx", "paper.docx", 1024, ErrUnsupportedExtension},
		{"no extension", "paper", 1024, ErrUnsupportedExtension},
		{"empty", "paper.pdf", 0, ErrEmptyFile},
		{"at limit", "paper.pdf", 10 * 1024 * 1024, nil},
		{"over limit", "paper.pdf", 10*1024*1024 + 1, ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.file, tt.size)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			var uploadErr *UploadError
			if !errors.As(err, &uploadErr) {
				t.Errorf("expected *UploadError, got %T", err)
			}
		})
	}
}
