package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/resource"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentStores = 4

// GalleryService generates images and serves them through the session's
// gallery handles.
type GalleryService struct {
	generator client.ImageGenerator
	store     resource.Store
	sessions  *SessionService
	validator *validator.Validate
}

func NewGalleryService(generator client.ImageGenerator, store resource.Store, sessions *SessionService, v *validator.Validate) *GalleryService {
	return &GalleryService{
		generator: generator,
		store:     store,
		sessions:  sessions,
		validator: v,
	}
}

// Models lists the backend models
func (s *GalleryService) Models(ctx context.Context) ([]client.ModelInfo, error) {
	return s.generator.ListModels(ctx)
}

// Prompts lists the backend's example prompts
func (s *GalleryService) Prompts(ctx context.Context) ([]client.PromptExample, error) {
	return s.generator.PromptExamples(ctx)
}

// Generate runs a generation and replaces the session's gallery with the
// result. Validation failures are returned as validator.ValidationErrors.
// A generation overtaken by a newer one for the same session returns
// ErrGallerySuperseded and leaves the newer gallery installed.
func (s *GalleryService) Generate(ctx context.Context, sessionID string, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	gen := s.sessions.BeginGallery(sessionID)

	steps := req.NumInferenceSteps
	if steps == 0 {
		steps = model.DefaultInferenceSteps
	}
	guidance := req.GuidanceScale
	if guidance == 0 {
		guidance = model.DefaultGuidanceScale
	}

	resp, err := s.generator.Generate(ctx, &client.GenerateRequest{
		ModelName:         req.ModelName,
		Prompt:            req.Prompt,
		NumImages:         req.NumImages,
		NumInferenceSteps: steps,
		GuidanceScale:     guidance,
		Seed:              req.Seed,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, ErrGenerationFailed
	}

	decoded := make([][]byte, len(resp.Images))
	for i, img := range resp.Images {
		data, err := decodeImageData(img.ImageData)
		if err != nil {
			return nil, &client.SchemaMismatchError{Field: fmt.Sprintf("images[%d].image_data", i), Reason: err.Error()}
		}
		decoded[i] = data
	}

	handles, err := s.storeAll(ctx, decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to store generated images: %w", err)
	}
	if err := s.sessions.ReplaceGallery(ctx, sessionID, gen, handles); err != nil {
		return nil, err
	}

	images := make([]model.GalleryImage, len(handles))
	for i, h := range handles {
		images[i] = model.GalleryImage{
			Handle:   h,
			Seed:     resp.Images[i].Seed,
			Filename: resp.Images[i].Filename,
		}
	}

	log.Printf("Session %s gallery: %d images from %s in %.1fs", sessionID, len(images), req.ModelName, resp.GenerationTimeSeconds)
	return &model.GenerateResponse{
		SessionID:             sessionID,
		ModelName:             req.ModelName,
		Prompt:                req.Prompt,
		Images:                images,
		GenerationTimeSeconds: resp.GenerationTimeSeconds,
	}, nil
}

// storeAll stores every image or none of them.
func (s *GalleryService) storeAll(ctx context.Context, images [][]byte) ([]resource.Handle, error) {
	handles := make([]resource.Handle, len(images))
	stored := make([]bool, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentStores)
	for i, data := range images {
		i, data := i, data
		g.Go(func() error {
			h, err := s.store.Put(gctx, data, "image/png")
			if err != nil {
				return err
			}
			handles[i] = h
			stored[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for i, ok := range stored {
			if !ok {
				continue
			}
			if rerr := s.store.Revoke(context.WithoutCancel(ctx), handles[i].ID); rerr != nil {
				log.Printf("Failed to revoke partial gallery handle %s: %v", handles[i].ID, rerr)
			}
		}
		return nil, err
	}
	return handles, nil
}

// decodeImageData accepts raw base64 or a data URL.
func decodeImageData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return data, nil
}
