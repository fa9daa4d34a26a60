// ABOUTME: Whiteboard session tying one canvas surface to the snapshot store
// ABOUTME: Strokes draw synchronously; snapshots persist in order on the version controller

package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/canvas"
	"github.com/nainya/boardstore/pkg/codec"
	"github.com/nainya/boardstore/pkg/store"
	"github.com/nainya/boardstore/pkg/version"
)

// Options configures a session
type Options struct {
	Width      int
	Height     int
	Background string

	Controller version.Config
	Logger     zerolog.Logger
}

// DefaultOptions returns a 1280x720 white canvas with the default retry policy
func DefaultOptions() Options {
	return Options{
		Width:      store.DefaultWidth,
		Height:     store.DefaultHeight,
		Background: canvas.DefaultBackground,
		Controller: version.DefaultConfig(),
		Logger:     zerolog.Nop(),
	}
}

// Session is one client's view of a whiteboard. The surface is only reachable
// through Session methods.
type Session struct {
	id    string
	ctx   context.Context
	store store.Store
	ctrl  *version.Controller
	log   zerolog.Logger

	mu       sync.Mutex
	surface  *canvas.Surface
	drawing  bool
	warnings []string
}

// Open loads whiteboard id onto a new surface. A missing whiteboard or an
// undecodable snapshot gives a blank surface and a warning; other store
// errors are returned.
func Open(ctx context.Context, st store.Store, id string, opts Options) (*Session, error) {
	surface, err := canvas.New(opts.Width, opts.Height, opts.Background)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrInvalidInput, err)
	}

	s := &Session{
		id:      id,
		ctx:     context.WithoutCancel(ctx),
		store:   st,
		surface: surface,
		log:     opts.Logger.With().Str("whiteboard", id).Logger(),
	}

	snap, err := st.GetCurrent(ctx, id)
	switch {
	case err == nil:
		if err := codec.DecodeInto(surface, snap.Data); err != nil {
			s.warn(err)
		}
	case errors.Is(err, board.ErrNotFound):
		s.warn(err)
	default:
		return nil, err
	}

	s.ctrl = version.New(ctx, st, id, opts.Controller)
	s.ctrl.OnRestored(s.hydrate)
	return s, nil
}

// ID returns the whiteboard id
func (s *Session) ID() string { return s.id }

// SetColor changes the pen color
func (s *Session) SetColor(hex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.SetColor(hex)
}

// SetWidth changes the pen width
func (s *Session) SetWidth(w float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.SetWidth(w)
}

// UseEraser switches the pen to the background color
func (s *Session) UseEraser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.UseEraser()
}

// Begin starts a stroke at p
func (s *Session) Begin(p canvas.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.Begin(p)
}

// Extend draws to p. The first drawn segment of a stroke moves the
// controller to Drawing.
func (s *Session) Extend(p canvas.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface.Extend(p) && !s.drawing {
		s.drawing = true
		s.ctrl.StrokeStarted()
	}
}

// End finishes the stroke and queues a snapshot commit if anything was drawn
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.surface.End()
	if !ok {
		s.endDrawingLocked()
		return nil
	}

	payload, err := codec.EncodeSurface(s.surface)
	if err == nil {
		err = s.ctrl.Submit(payload)
	}
	// Submit before leaving Drawing so a restore cannot slip in ahead
	s.endDrawingLocked()
	if err != nil {
		s.warnLocked(err)
		return err
	}
	return nil
}

// ErrStrokeDiscarded is recorded as a warning when a restore lands on top of
// a stroke that started after the restore was already running
var ErrStrokeDiscarded = errors.New("session: stroke discarded by restore")

// RestoreVersion makes version index current and reloads the surface from it.
// It fails with board.ErrBusy while a stroke is being drawn.
func (s *Session) RestoreVersion(ctx context.Context, index int) (*board.SnapshotVersion, error) {
	return s.ctrl.Restore(ctx, index)
}

// Versions lists the whiteboard history
func (s *Session) Versions(ctx context.Context) ([]board.SnapshotVersion, error) {
	return s.store.ListVersions(ctx, s.id)
}

// Image returns a copy of the surface pixels
func (s *Session) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Image()
}

// Warnings returns the non-fatal problems seen so far
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

// Status returns the save indicator
func (s *Session) Status() version.Status { return s.ctrl.Status() }

// State returns the controller state
func (s *Session) State() version.State { return s.ctrl.State() }

// Err returns the last write error while the snapshot is not saved
func (s *Session) Err() error { return s.ctrl.Err() }

// Flush retries an unsaved snapshot and waits for pending writes
func (s *Session) Flush(ctx context.Context) error { return s.ctrl.Flush(ctx) }

// Wait blocks until pending writes have resolved
func (s *Session) Wait(ctx context.Context) error { return s.ctrl.Wait(ctx) }

// Close stops accepting strokes for persistence. Pending commits still
// complete in the background; Done reports when they have.
func (s *Session) Close() { s.ctrl.Close() }

// Done is closed after Close once pending writes have finished
func (s *Session) Done() <-chan struct{} { return s.ctrl.Done() }

// hydrate replaces the surface with a restored snapshot. Stores that return
// the version without its payload are read back through GetCurrent.
func (s *Session) hydrate(v *board.SnapshotVersion) {
	data := v.Data
	var fetchErr error
	if data == "" {
		snap, err := s.store.GetCurrent(s.ctx, s.id)
		if err != nil {
			fetchErr = err
		} else {
			data = snap.Data
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fetchErr != nil {
		s.warnLocked(fetchErr)
		s.surface.Reset()
	} else if err := codec.DecodeInto(s.surface, data); err != nil {
		s.warnLocked(err)
		s.surface.Reset()
	}
	// Load drops any active stroke
	if s.drawing {
		s.warnLocked(ErrStrokeDiscarded)
	}
	s.endDrawingLocked()
	s.log.Info().Int("index", v.Index).Msg("Whiteboard restored")
}

func (s *Session) endDrawingLocked() {
	if s.drawing {
		s.drawing = false
		s.ctrl.StrokeEnded()
	}
}

func (s *Session) warn(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnLocked(err)
}

func (s *Session) warnLocked(err error) {
	s.log.Warn().Err(err).Msg("Whiteboard warning")
	s.warnings = append(s.warnings, err.Error())
}
