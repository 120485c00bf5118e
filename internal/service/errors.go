package service

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRunNotFound      = errors.New("analysis run not found")
	ErrRunNotFinished   = errors.New("analysis run has not finished")
	ErrGenerationFailed = errors.New("image generation failed")

	ErrGallerySuperseded = errors.New("gallery superseded by a newer request")

	ErrEmptyFile            = errors.New("file is empty")
	ErrUnsupportedExtension = errors.New("file extension not allowed")
	ErrFileTooLarge         = errors.New("file exceeds the upload limit")
)

// UploadError describes why an upload was rejected. It wraps one of the
// upload sentinels above.
type UploadError struct {
	Err      error
	FileName string
	Size     int64
	MaxSize  int64
	Allowed  []string
}

func (e *UploadError) Error() string {
	return e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
