package service

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/config"
	"github.com/parsey/docpreview/internal/preview"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeGenerator struct {
	resp *client.GenerateResponse
	err  error
	got  *client.GenerateRequest
}

func (g *fakeGenerator) Health(ctx context.Context) (*client.HealthStatus, error) {
	return &client.HealthStatus{"status": "healthy"}, nil
}

func (g *fakeGenerator) ListModels(ctx context.Context) ([]client.ModelInfo, error) {
	return []client.ModelInfo{{Name: "base", Available: true}}, nil
}

func (g *fakeGenerator) PromptExamples(ctx context.Context) ([]client.PromptExample, error) {
	return []client.PromptExample{{Category: "shoes", Prompt: "brown leather shoes"}}, nil
}

func (g *fakeGenerator) Generate(ctx context.Context, req *client.GenerateRequest) (*client.GenerateResponse, error) {
	g.got = req
	return g.resp, g.err
}

func testUploadPolicy() *UploadPolicy {
	return NewUploadPolicy(&config.UploadConfig{
		MaxSizeMB:  10,
		Extensions: []string{".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".tif"},
	})
}

func pdfFile(name string) preview.SourceFile {
	data := []byte("%PDF-1.4 test")
	return preview.SourceFile{Name: name, MediaType: "application/pdf", Size: int64(len(data)), Data: data}
}
