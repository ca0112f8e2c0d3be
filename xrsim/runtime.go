// Package xrsim is an in-process VR runtime. It paces frames on a fixed
// interval, scripts the session state events a real runtime would send, hands
// out swapchains allocated on the engine's device and reports stereo views and
// hand poses from a deterministic head motion. It is used for headless runs and
// tests.
package xrsim

import (
	"sync"
	"time"

	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
)

// Options configure the simulated headset.
type Options struct {
	// Interval is the display period. Zero disables pacing.
	Interval time.Duration
	Width    uint32
	Height   uint32
	// Frames ends the session after that many rendered frames, zero runs until
	// exit is requested.
	Frames     int
	ImageCount int
	// IPD is the distance between the eyes in meters.
	IPD        float32
	EyeHeight  float32
	BlendModes []dieselxr.BlendMode

	MinAPIVersion      dieselxr.Version
	MaxAPIVersion      dieselxr.Version
	InstanceExtensions []string
	DeviceExtensions   []string
	// GraphicsDevice is handed back by GraphicsDevice. Nil accepts any device.
	GraphicsDevice any
}

// DefaultOptions roughly match a current standalone headset.
func DefaultOptions() Options {
	return Options{
		Interval:      11 * time.Millisecond,
		Width:         1440,
		Height:        1600,
		ImageCount:    3,
		IPD:           0.064,
		EyeHeight:     1.6,
		BlendModes:    []dieselxr.BlendMode{dieselxr.BlendOpaque},
		MinAPIVersion: dieselxr.MakeVersion(1, 0, 0),
		MaxAPIVersion: dieselxr.MakeVersion(1, 3, 0),
	}
}

// Runtime implements dieselxr.Runtime.
type Runtime struct {
	opts Options

	mu      sync.Mutex
	events  []dieselxr.Event
	session *Session
}

var _ dieselxr.Runtime = (*Runtime)(nil)

func New(opts Options) *Runtime {
	def := DefaultOptions()
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.ImageCount <= 0 {
		opts.ImageCount = def.ImageCount
	}
	if opts.IPD <= 0 {
		opts.IPD = def.IPD
	}
	if opts.EyeHeight <= 0 {
		opts.EyeHeight = def.EyeHeight
	}
	if len(opts.BlendModes) == 0 {
		opts.BlendModes = def.BlendModes
	}
	if opts.MaxAPIVersion == 0 {
		opts.MinAPIVersion, opts.MaxAPIVersion = def.MinAPIVersion, def.MaxAPIVersion
	}
	return &Runtime{opts: opts}
}

func (r *Runtime) GraphicsRequirements() (dieselxr.GraphicsRequirements, error) {
	return dieselxr.GraphicsRequirements{
		MinAPIVersion: r.opts.MinAPIVersion,
		MaxAPIVersion: r.opts.MaxAPIVersion,
	}, nil
}

func (r *Runtime) RequiredInstanceExtensions() ([]string, error) {
	return r.opts.InstanceExtensions, nil
}

func (r *Runtime) RequiredDeviceExtensions() ([]string, error) {
	return r.opts.DeviceExtensions, nil
}

// GraphicsDevice returns the configured device whatever the instance.
func (r *Runtime) GraphicsDevice(instance any) (any, error) {
	return r.opts.GraphicsDevice, nil
}

// ViewConfigurationViews reports two identical views at the configured size.
func (r *Runtime) ViewConfigurationViews() ([]dieselxr.ViewConfigView, error) {
	v := dieselxr.ViewConfigView{
		RecommendedWidth:   r.opts.Width,
		RecommendedHeight:  r.opts.Height,
		MaxWidth:           r.opts.Width * 2,
		MaxHeight:          r.opts.Height * 2,
		RecommendedSamples: 1,
	}
	return []dieselxr.ViewConfigView{v, v}, nil
}

func (r *Runtime) EnvironmentBlendModes() ([]dieselxr.BlendMode, error) {
	return r.opts.BlendModes, nil
}

// CreateSession binds a session to the engine device. Swapchain images are
// allocated through binding.Device, so it must be set.
func (r *Runtime) CreateSession(binding dieselxr.SessionBinding) (dieselxr.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil && !r.session.destroyed {
		return nil, errors.New("xrsim: a session already exists")
	}
	if binding.Device == nil {
		return nil, errors.New("xrsim: session binding has no device")
	}
	if binding.QueueFamily != binding.Device.QueueFamily() {
		return nil, errors.Errorf("xrsim: queue family %d does not match the device (%d)",
			binding.QueueFamily, binding.Device.QueueFamily())
	}
	s := newSession(r, binding)
	r.session = s
	r.push(dieselxr.SessionStateChanged{State: dieselxr.RuntimeIdle, Time: s.now()})
	r.push(dieselxr.SessionStateChanged{State: dieselxr.RuntimeReady, Time: s.now()})
	dieselxr.Logger().Info("xrsim: session created",
		"width", r.opts.Width, "height", r.opts.Height, "interval", r.opts.Interval)
	return s, nil
}

// PollEvent pops the oldest pending event.
func (r *Runtime) PollEvent() (dieselxr.Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil, false, nil
	}
	ev := r.events[0]
	r.events = r.events[1:]
	return ev, true, nil
}

// LoseInstance queues an instance loss, as a runtime does before shutting down
// underneath the application.
func (r *Runtime) LoseInstance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t dieselxr.Time
	if r.session != nil {
		t = r.session.now()
	}
	r.push(dieselxr.InstanceLossPending{LossTime: t})
}

// Invalidate marks the swapchains of the current session out of date.
func (r *Runtime) Invalidate() {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()
	if s != nil {
		s.Invalidate()
	}
}

func (r *Runtime) Destroy() {
	dieselxr.Logger().Info("xrsim: runtime destroyed")
}

// push requires r.mu.
func (r *Runtime) push(ev dieselxr.Event) {
	r.events = append(r.events, ev)
}

func (r *Runtime) emit(evs ...dieselxr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range evs {
		r.push(ev)
	}
}
