package xrsim

import (
	"sync"
	"time"

	"github.com/andewx/dieselxr"
	"github.com/loov/hrtime"
	"github.com/pkg/errors"
)

var (
	ErrCallOrder      = errors.New("xrsim: call order invalid")
	ErrNotRunning     = errors.New("xrsim: session not running")
	ErrSessionStopped = errors.New("xrsim: session destroyed")
)

type frameState int

const (
	frameIdle frameState = iota
	frameWaited
	frameBegun
)

// Session implements dieselxr.Session. The runtime state follows the usual
// IDLE, READY, SYNCHRONIZED, VISIBLE, FOCUSED, STOPPING, IDLE, EXITING path.
type Session struct {
	rt      *Runtime
	binding dieselxr.SessionBinding
	epoch   time.Duration

	state         dieselxr.RuntimeState
	exitRequested bool
	destroyed     bool

	frame     frameState
	nextFrame time.Duration
	rendered  int
	skipped   int

	// mu guards swapchains; Invalidate may be called from any goroutine.
	mu         sync.Mutex
	swapchains map[*Swapchain]bool
	actionSet  *ActionSet
}

var _ dieselxr.Session = (*Session)(nil)

func newSession(rt *Runtime, binding dieselxr.SessionBinding) *Session {
	return &Session{
		rt:         rt,
		binding:    binding,
		epoch:      hrtime.Now(),
		state:      dieselxr.RuntimeReady,
		swapchains: map[*Swapchain]bool{},
	}
}

// now is the session clock in nanoseconds since creation.
func (s *Session) now() dieselxr.Time {
	return dieselxr.Time(hrtime.Now() - s.epoch)
}

func (s *Session) running() bool {
	switch s.state {
	case dieselxr.RuntimeSynchronized, dieselxr.RuntimeVisible, dieselxr.RuntimeFocused:
		return true
	}
	return false
}

// State is the runtime side session state.
func (s *Session) State() dieselxr.RuntimeState { return s.state }

// Rendered counts frames ended with at least one layer.
func (s *Session) Rendered() int { return s.rendered }

// Skipped counts frames ended without layers.
func (s *Session) Skipped() int { return s.skipped }

func (s *Session) Begin() error {
	if s.destroyed {
		return ErrSessionStopped
	}
	if s.state != dieselxr.RuntimeReady {
		return errors.Wrapf(ErrCallOrder, "begin in state %v", s.state)
	}
	t := s.now()
	s.state = dieselxr.RuntimeFocused
	s.rt.emit(
		dieselxr.SessionStateChanged{State: dieselxr.RuntimeSynchronized, Time: t},
		dieselxr.SessionStateChanged{State: dieselxr.RuntimeVisible, Time: t},
		dieselxr.SessionStateChanged{State: dieselxr.RuntimeFocused, Time: t},
	)
	dieselxr.Logger().Info("xrsim: session begun")
	return nil
}

func (s *Session) End() error {
	if s.destroyed {
		return ErrSessionStopped
	}
	if s.state != dieselxr.RuntimeStopping {
		return errors.Wrapf(ErrCallOrder, "end in state %v", s.state)
	}
	t := s.now()
	s.state = dieselxr.RuntimeIdle
	evs := []dieselxr.Event{dieselxr.SessionStateChanged{State: dieselxr.RuntimeIdle, Time: t}}
	if s.exitRequested {
		s.state = dieselxr.RuntimeExiting
		evs = append(evs, dieselxr.SessionStateChanged{State: dieselxr.RuntimeExiting, Time: t})
	}
	s.rt.emit(evs...)
	dieselxr.Logger().Info("xrsim: session ended", "rendered", s.rendered, "skipped", s.skipped)
	return nil
}

// RequestExit starts the STOPPING, IDLE, EXITING sequence.
func (s *Session) RequestExit() error {
	if !s.running() {
		return errors.Wrapf(ErrNotRunning, "request exit in state %v", s.state)
	}
	s.stop()
	return nil
}

func (s *Session) stop() {
	s.exitRequested = true
	s.state = dieselxr.RuntimeStopping
	s.rt.emit(dieselxr.SessionStateChanged{State: dieselxr.RuntimeStopping, Time: s.now()})
}

// WaitFrame blocks until the next display period starts and predicts the
// display time one period later. Rendering is only requested while running.
func (s *Session) WaitFrame() (dieselxr.FrameState, error) {
	if s.destroyed {
		return dieselxr.FrameState{}, ErrSessionStopped
	}
	if s.frame == frameWaited {
		return dieselxr.FrameState{}, errors.Wrap(ErrCallOrder, "wait frame twice without begin")
	}
	interval := s.rt.opts.Interval
	now := hrtime.Now() - s.epoch
	if s.nextFrame == 0 || now > s.nextFrame+interval {
		// first frame, or the app fell behind by more than a period
		s.nextFrame = now
	}
	if wait := s.nextFrame - now; wait > 0 {
		time.Sleep(wait)
	}
	display := s.nextFrame + interval
	s.nextFrame += interval
	s.frame = frameWaited

	return dieselxr.FrameState{
		PredictedDisplayTime:   dieselxr.Time(display),
		PredictedDisplayPeriod: interval,
		ShouldRender:           s.running(),
	}, nil
}

func (s *Session) BeginFrame() error {
	if s.frame != frameWaited {
		return errors.Wrap(ErrCallOrder, "begin frame without wait frame")
	}
	s.frame = frameBegun
	return nil
}

// EndFrame checks the submitted layers the way a compositor would before
// reading them.
func (s *Session) EndFrame(end dieselxr.FrameEnd) error {
	if s.frame != frameBegun {
		return errors.Wrap(ErrCallOrder, "end frame without begin frame")
	}
	s.frame = frameIdle
	if !s.blendSupported(end.BlendMode) {
		return errors.Errorf("xrsim: blend mode %v not supported", end.BlendMode)
	}
	for i, l := range end.Layers {
		if err := s.checkLayer(l); err != nil {
			return errors.Wrapf(err, "layer %d", i)
		}
	}
	if len(end.Layers) == 0 {
		s.skipped++
		return nil
	}
	s.rendered++
	if limit := s.rt.opts.Frames; limit > 0 && s.rendered >= limit && s.running() {
		dieselxr.Logger().Info("xrsim: frame limit reached, stopping", "frames", s.rendered)
		s.stop()
	}
	return nil
}

func (s *Session) blendSupported(m dieselxr.BlendMode) bool {
	for _, b := range s.rt.opts.BlendModes {
		if b == m {
			return true
		}
	}
	return false
}

func (s *Session) checkLayer(l dieselxr.CompositionLayer) error {
	proj, ok := l.(*dieselxr.ProjectionLayer)
	if !ok {
		return errors.Errorf("xrsim: unsupported layer %T", l)
	}
	if _, ok := proj.Space.(*Space); !ok {
		return errors.New("xrsim: projection layer space not created by this session")
	}
	if len(proj.Views) != dieselxr.ViewCount {
		return errors.Errorf("xrsim: projection layer has %d views", len(proj.Views))
	}
	for eye, v := range proj.Views {
		sc, ok := v.SubImage.Swapchain.(*Swapchain)
		if !ok || !s.owns(sc) {
			return errors.Errorf("xrsim: view %d swapchain not created by this session", eye)
		}
		if sc.acquired {
			return errors.Wrapf(ErrCallOrder, "view %d swapchain image not released", eye)
		}
		if v.SubImage.ArrayIndex >= sc.desc.ArraySize {
			return errors.Errorf("xrsim: view %d array index %d out of range", eye, v.SubImage.ArrayIndex)
		}
		r := v.SubImage.Rect
		if r.Offset.X < 0 || r.Offset.Y < 0 ||
			uint32(r.Offset.X)+r.Extent.Width > sc.desc.Width ||
			uint32(r.Offset.Y)+r.Extent.Height > sc.desc.Height {
			return errors.Errorf("xrsim: view %d rect outside the swapchain", eye)
		}
	}
	return nil
}

// Invalidate makes every existing swapchain report an out of date surface on its
// next acquire, as after a display mode change.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sc := range s.swapchains {
		sc.stale.Store(true)
	}
}

func (s *Session) owns(sc *Swapchain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapchains[sc]
}

func (s *Session) forget(sc *Swapchain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.swapchains, sc)
}

func (s *Session) CreateSwapchain(desc dieselxr.SwapchainDesc) (dieselxr.Swapchain, error) {
	if s.destroyed {
		return nil, ErrSessionStopped
	}
	sc, err := newSwapchain(s, desc)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.swapchains[sc] = true
	s.mu.Unlock()
	return sc, nil
}

func (s *Session) CreateReferenceSpace(kind dieselxr.ReferenceSpaceType, pose dieselxr.Pose) (dieselxr.Space, error) {
	switch kind {
	case dieselxr.SpaceView, dieselxr.SpaceLocal, dieselxr.SpaceStage:
	default:
		return nil, errors.Errorf("xrsim: unknown reference space %d", kind)
	}
	return &Space{kind: kind, origin: pose}, nil
}

// Destroy releases swapchains the application did not destroy.
func (s *Session) Destroy() {
	if s.destroyed {
		return
	}
	s.mu.Lock()
	live := make([]*Swapchain, 0, len(s.swapchains))
	for sc := range s.swapchains {
		live = append(live, sc)
	}
	s.mu.Unlock()
	for _, sc := range live {
		sc.Destroy()
	}
	s.destroyed = true
	dieselxr.Logger().Info("xrsim: session destroyed")
}
