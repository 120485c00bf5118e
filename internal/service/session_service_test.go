package service

import (
	"context"
	"errors"
	"testing"

	"github.com/parsey/docpreview/internal/preview"
	"github.com/parsey/docpreview/internal/resource"
)

func newTestSessions() (*SessionService, *resource.MemoryStore) {
	store := resource.NewMemoryStore(nil)
	dec := &preview.Decoder{PageCounter: func([]byte) (int, error) { return 3, nil }}
	return NewSessionService(dec, store), store
}

func TestSessionService_PreviewAndZoom(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestSessions()

	resp, err := svc.Preview(ctx, "s1", pdfFile("paper.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Preview.Status != preview.StatusRenderable || resp.Preview.Pages != 3 || resp.Zoom != preview.DefaultZoom {
		t.Fatalf("unexpected preview %+v", resp)
	}

	z, err := svc.Zoom("s1", preview.ZoomIn)
	if err != nil || z.Zoom != 125 {
		t.Fatalf("expected 125, got %+v (%v)", z, err)
	}

	// Zoom survives a new file.
	resp, err = svc.Preview(ctx, "s1", pdfFile("other.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Zoom != 125 {
		t.Errorf("expected zoom kept at 125, got %d", resp.Zoom)
	}
	if store.Live() != 1 {
		t.Errorf("expected one live handle, got %d", store.Live())
	}

	if _, err := svc.Zoom("s1", "sideways"); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, err := svc.Zoom("nope", preview.ZoomIn); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionService_Teardown(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestSessions()

	if _, err := svc.Preview(ctx, "s1", pdfFile("paper.pdf")); err != nil {
		t.Fatal(err)
	}
	h, _ := store.Put(ctx, []byte("png"), "image/png")
	if err := svc.ReplaceGallery(ctx, "s1", svc.BeginGallery("s1"), []resource.Handle{h}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Teardown(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if store.Live() != 0 {
		t.Errorf("expected all handles revoked, %d live", store.Live())
	}
	if err := svc.Teardown(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionService_ReplaceGalleryRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestSessions()

	a, _ := store.Put(ctx, []byte("a"), "image/png")
	b, _ := store.Put(ctx, []byte("b"), "image/png")
	if err := svc.ReplaceGallery(ctx, "s1", svc.BeginGallery("s1"), []resource.Handle{a}); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReplaceGallery(ctx, "s1", svc.BeginGallery("s1"), []resource.Handle{b}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, a.ID); !errors.Is(err, resource.ErrNotFound) {
		t.Errorf("expected first gallery revoked, got %v", err)
	}
	if _, err := store.Get(ctx, b.ID); err != nil {
		t.Errorf("expected second gallery live, got %v", err)
	}
}

func TestSessionService_StaleGalleryIsRejected(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestSessions()

	older := svc.BeginGallery("s1")
	newer := svc.BeginGallery("s1")

	b, _ := store.Put(ctx, []byte("b"), "image/png")
	if err := svc.ReplaceGallery(ctx, "s1", newer, []resource.Handle{b}); err != nil {
		t.Fatal(err)
	}

	a, _ := store.Put(ctx, []byte("a"), "image/png")
	if err := svc.ReplaceGallery(ctx, "s1", older, []resource.Handle{a}); !errors.Is(err, ErrGallerySuperseded) {
		t.Fatalf("expected ErrGallerySuperseded, got %v", err)
	}
	if _, err := store.Get(ctx, a.ID); !errors.Is(err, resource.ErrNotFound) {
		t.Errorf("expected stale handles revoked, got %v", err)
	}
	if _, err := store.Get(ctx, b.ID); err != nil {
		t.Errorf("expected newer gallery live, got %v", err)
	}
}

func TestSessionService_GalleryAfterTeardownIsRevoked(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestSessions()

	gen := svc.BeginGallery("s1")
	if err := svc.Teardown(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	h, _ := store.Put(ctx, []byte("png"), "image/png")
	if err := svc.ReplaceGallery(ctx, "s1", gen, []resource.Handle{h}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if store.Live() != 0 {
		t.Errorf("expected handles revoked, %d live", store.Live())
	}
}

func TestSessionService_Close(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestSessions()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := svc.Preview(ctx, id, pdfFile(id+".pdf")); err != nil {
			t.Fatal(err)
		}
	}
	svc.Close(ctx)

	if svc.Len() != 0 || store.Live() != 0 {
		t.Errorf("expected everything released, sessions=%d live=%d", svc.Len(), store.Live())
	}
}
