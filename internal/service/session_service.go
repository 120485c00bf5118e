package service

import (
	"context"
	"log"
	"sync"

	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/preview"
	"github.com/parsey/docpreview/internal/resource"
)

type session struct {
	slot *preview.Slot

	mu         sync.Mutex
	zoom       preview.Zoom
	gallery    []resource.Handle
	galleryGen uint64
}

// SessionService owns the viewer sessions: one preview slot, one zoom
// level and one gallery per session.
type SessionService struct {
	decoder *preview.Decoder
	store   resource.Store

	mu       sync.Mutex
	sessions map[string]*session
	gens     uint64
}

func NewSessionService(decoder *preview.Decoder, store resource.Store) *SessionService {
	return &SessionService{
		decoder:  decoder,
		store:    store,
		sessions: make(map[string]*session),
	}
}

func (s *SessionService) getOrCreate(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			slot: preview.NewSlot(s.decoder, s.store),
			zoom: preview.DefaultZoom,
		}
		s.sessions[sessionID] = sess
	}
	return sess
}

func (s *SessionService) get(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Preview decodes file into the session's preview slot. A load overtaken by
// a newer one returns preview.ErrSuperseded.
func (s *SessionService) Preview(ctx context.Context, sessionID string, file preview.SourceFile) (*model.PreviewResponse, error) {
	sess := s.getOrCreate(sessionID)

	p, err := sess.slot.Load(ctx, file)
	if err != nil {
		return nil, err
	}
	log.Printf("Session %s preview %s: %s", sessionID, file.Name, p.Status)

	sess.mu.Lock()
	zoom := sess.zoom
	sess.mu.Unlock()

	return &model.PreviewResponse{SessionID: sessionID, Preview: p, Zoom: zoom}, nil
}

// Current returns the installed preview of a session
func (s *SessionService) Current(sessionID string) (*model.PreviewResponse, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.slot.Current()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &model.PreviewResponse{SessionID: sessionID, Preview: p, Zoom: sess.zoom}, nil
}

// Zoom applies a zoom action to the session's viewer
func (s *SessionService) Zoom(sessionID, action string) (*model.ZoomResponse, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	z, err := sess.zoom.Apply(action)
	if err != nil {
		return nil, err
	}
	sess.zoom = z
	return &model.ZoomResponse{SessionID: sessionID, Zoom: z}, nil
}

// BeginGallery reserves a gallery generation for sessionID. Only the most
// recently begun generation may install its handles.
func (s *SessionService) BeginGallery(sessionID string) uint64 {
	sess := s.getOrCreate(sessionID)

	s.mu.Lock()
	s.gens++
	gen := s.gens
	s.mu.Unlock()

	sess.mu.Lock()
	sess.galleryGen = gen
	sess.mu.Unlock()
	return gen
}

// ReplaceGallery installs handles as the session's gallery and revokes the
// previous set. Handles of a stale generation, or of a session torn down in
// the meantime, are revoked instead.
func (s *SessionService) ReplaceGallery(ctx context.Context, sessionID string, gen uint64, handles []resource.Handle) error {
	sess, err := s.get(sessionID)
	if err != nil {
		s.revokeAll(ctx, handles)
		return err
	}

	sess.mu.Lock()
	if sess.galleryGen != gen {
		sess.mu.Unlock()
		s.revokeAll(ctx, handles)
		return ErrGallerySuperseded
	}
	prev := sess.gallery
	sess.gallery = handles
	sess.mu.Unlock()

	s.revokeAll(ctx, prev)
	return nil
}

// Teardown releases every handle of a session and forgets it
func (s *SessionService) Teardown(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.release(ctx, sess)
	log.Printf("Session %s torn down", sessionID)
	return nil
}

// Close tears down all sessions. Used at shutdown.
func (s *SessionService) Close(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		s.release(ctx, sess)
	}
}

// Len returns the number of open sessions
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionService) release(ctx context.Context, sess *session) {
	sess.slot.Close(ctx)

	sess.mu.Lock()
	gallery := sess.gallery
	sess.gallery = nil
	sess.mu.Unlock()

	s.revokeAll(ctx, gallery)
}

func (s *SessionService) revokeAll(ctx context.Context, handles []resource.Handle) {
	for _, h := range handles {
		if err := s.store.Revoke(context.WithoutCancel(ctx), h.ID); err != nil {
			log.Printf("Failed to revoke gallery handle %s: %v", h.ID, err)
		}
	}
}
