// Package session is the engine behind an interactive viewer: one current
// image, exposure and gamma that change on every slider tick, and
// background loads that may be overtaken by newer ones.
//
// Slider changes never block on rendering. Each change bumps a generation
// number and drops a request into a one-slot mailbox; a single render
// goroutine picks it up, renders with whatever the parameters are by then,
// and publishes the frame only if nothing newer has been asked for in the
// meantime. A burst of slider moves therefore costs one or two renders,
// and the last frame out always matches the last parameters set.
package session

import(
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/abworrall/hdrview/pkg/hdrerr"
	"github.com/abworrall/hdrview/pkg/hdrview"
	"github.com/abworrall/hdrview/pkg/pixbuf"
	"github.com/abworrall/hdrview/pkg/tonemap"
)

var ErrNoImage = errors.New("no image loaded")
var ErrClosed = errors.New("session closed")

// A Frame is one rendered, display-referred image.
type Frame struct {
	Generation  uint64
	Record     *hdrview.Record   // what was rendered
	Params      tonemap.Params   // with these settings
	Pixels     *pixbuf.Buffer
}

// An Event reports the end of a Load. Exactly one of Record and Err is set.
type Event struct {
	Path     string
	Record  *hdrview.Record
	Err      error
}

type Session struct {
	cfg       hdrview.Config
	proc     *tonemap.Processor

	record    atomic.Pointer[hdrview.Record]
	renderGen atomic.Uint64
	loadGen   atomic.Uint64

	mu         sync.Mutex         // guards the fields below
	params     tonemap.Params
	cancelLoad context.CancelFunc
	closed     bool

	mailbox   chan struct{}        // one slot; a pending render request
	frames    chan Frame
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
}

// New starts a session's render goroutine. The initial exposure and gamma
// come from cfg. A nil proc gets one built from cfg.
func New(cfg hdrview.Config, proc *tonemap.Processor) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	if proc == nil {
		proc = cfg.Processor()
	}

	s := &Session{
		cfg:     cfg,
		proc:    proc,
		params:  params,
		mailbox: make(chan struct{}, 1),
		frames:  make(chan Frame, 1),
		events:  make(chan Event, 8),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.renderLoop()
	return s, nil
}

// Frames delivers rendered frames. Only the newest is kept: a frame nobody
// has read yet is replaced by the next one.
func (s *Session)Frames() <-chan Frame { return s.frames }

// Events delivers the outcome of each Load that wasn't superseded.
func (s *Session)Events() <-chan Event { return s.events }

// Record is the current image, or nil.
func (s *Session)Record() *hdrview.Record { return s.record.Load() }

func (s *Session)Params() tonemap.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Load starts loading path in the background and returns straight away.
// Any load still in flight is cancelled and its result thrown away. On
// success the new record replaces the current one and a render is queued;
// on failure the current record is left exactly as it was. Either way an
// Event is sent.
func (s *Session)Load(ctx context.Context, path string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	lctx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	id := s.loadGen.Add(1)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()

		rec, err := hdrview.LoadWithConfig(lctx, path, s.cfg)

		s.mu.Lock()
		defer s.mu.Unlock()
		if id != s.loadGen.Load() || s.closed {
			if s.cfg.Verbosity > 0 {
				log.Printf("load of %s superseded, discarding\n", path)
			}
			return
		}
		s.cancelLoad = nil

		if err != nil {
			s.sendEvent(Event{Path: path, Err: err})
			return
		}
		s.record.Store(rec)
		s.renderGen.Add(1)
		s.sendEvent(Event{Path: path, Record: rec})
		s.requestRender()
	}()

	return nil
}

// SetExposure sets the exposure in stops and queues a render.
func (s *Session)SetExposure(stops float64) error {
	if math.IsNaN(stops) || math.IsInf(stops, 0) {
		return hdrerr.NewInvalidParameter("exposure", stops, "must be finite")
	}
	s.mu.Lock()
	s.params.Exposure = stops
	s.mu.Unlock()
	s.changed()
	return nil
}

// SetGamma sets the display gamma (e.g. 2.2, not its inverse) and queues
// a render.
func (s *Session)SetGamma(gamma float64) error {
	p, err := tonemap.NewParams(0, gamma)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.params.InvGamma = p.InvGamma
	s.mu.Unlock()
	s.changed()
	return nil
}

// Render renders the current image with the current parameters, on the
// calling goroutine.
func (s *Session)Render() (Frame, error) {
	rec := s.record.Load()
	if rec == nil {
		return Frame{}, ErrNoImage
	}
	gen := s.renderGen.Load()
	params := s.Params()

	return Frame{
		Generation: gen,
		Record:     rec,
		Params:     params,
		Pixels:     s.proc.Apply(rec.Pixels, params),
	}, nil
}

// Close stops the render goroutine and cancels any load. Frames and Events
// are not closed; just stop reading them.
func (s *Session)Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Session)changed() {
	s.renderGen.Add(1)
	s.requestRender()
}

// requestRender never blocks: if a request is already waiting, that one
// will see the newest parameters anyway.
func (s *Session)requestRender() {
	select {
	case s.mailbox <- struct{}{}:
	default:
	}
}

func (s *Session)renderLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.mailbox:
		}

		f, err := s.Render()
		if err != nil {
			continue // nothing loaded yet
		}
		if f.Generation != s.renderGen.Load() {
			continue // stale; a newer request is already in the mailbox
		}
		s.publish(f)
	}
}

// publish replaces any unread frame with f.
func (s *Session)publish(f Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// sendEvent drops the oldest event if nobody is reading. Called with mu held.
func (s *Session)sendEvent(e Event) {
	for {
		select {
		case s.events <- e:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
