package preview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/parsey/docpreview/internal/resource"
)

var (
	// ErrSuperseded is returned by Load when a newer Load started before
	// this one finished. Its result was discarded.
	ErrSuperseded = errors.New("preview superseded by a newer file")
	// ErrSlotClosed is returned once the slot has been torn down.
	ErrSlotClosed = errors.New("preview slot closed")
)

// Preview is what the viewer renders for the file currently in a slot.
type Preview struct {
	Status     Status           `json:"status"`
	Kind       Kind             `json:"kind,omitempty"`
	Handle     *resource.Handle `json:"handle,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	FileName   string           `json:"fileName"`
	FileSize   int64            `json:"fileSize"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Pages      int              `json:"pages,omitempty"`
	Converted  bool             `json:"converted,omitempty"`
	Generation uint64           `json:"generation"`
}

// Slot holds the preview of one viewer. It keeps at most one live handle:
// installing a new preview revokes the previous handle, and results of
// superseded loads are dropped before a handle is ever issued for them.
type Slot struct {
	decoder *Decoder
	store   resource.Store

	mu         sync.Mutex
	generation uint64
	current    *Preview
	closed     bool
}

// NewSlot creates an empty slot
func NewSlot(decoder *Decoder, store resource.Store) *Slot {
	return &Slot{
		decoder: decoder,
		store:   store,
	}
}

// Load decodes file and installs it as the slot's preview.
func (s *Slot) Load(ctx context.Context, file SourceFile) (Preview, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Preview{}, ErrSlotClosed
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	decoded, err := s.decoder.Decode(ctx, file)
	if err != nil {
		return Preview{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Preview{}, ErrSlotClosed
	}
	if gen != s.generation {
		return Preview{}, ErrSuperseded
	}

	next := Preview{
		Status:     decoded.Status,
		Kind:       decoded.Kind,
		Reason:     decoded.Reason,
		FileName:   file.Name,
		FileSize:   file.Size,
		Width:      decoded.Width,
		Height:     decoded.Height,
		Pages:      decoded.Pages,
		Converted:  decoded.Converted,
		Generation: gen,
	}

	if decoded.Status == StatusRenderable {
		h, err := s.store.Put(ctx, decoded.Data, decoded.ContentType)
		if err != nil {
			next.Status = StatusFailed
			next.Kind = ""
			next.Reason = fmt.Sprintf("failed to export preview: %v", err)
		} else {
			next.Handle = &h
		}
	}

	prev := s.current
	s.current = &next
	s.release(ctx, prev)

	return next, nil
}

// Current returns the installed preview, if any.
func (s *Slot) Current() (Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Preview{}, false
	}
	return *s.current, true
}

// Close revokes the live handle. Loads still in flight are discarded.
func (s *Slot) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	prev := s.current
	s.current = nil
	s.release(ctx, prev)
}

// release must be called with s.mu held.
func (s *Slot) release(ctx context.Context, p *Preview) {
	if p == nil || p.Handle == nil {
		return
	}
	err := s.store.Revoke(context.WithoutCancel(ctx), p.Handle.ID)
	switch {
	case err == nil:
	case errors.Is(err, resource.ErrHandleRevoked):
		log.Printf("BUG: resource leak guard: handle %s revoked twice", p.Handle.ID)
	default:
		log.Printf("Failed to revoke preview handle %s: %v", p.Handle.ID, err)
	}
}
