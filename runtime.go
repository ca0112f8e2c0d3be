package dieselxr

import (
	"time"

	"github.com/pkg/errors"
)

// RuntimeState is the session state reported by the VR runtime in a
// SessionStateChanged event.
type RuntimeState int

const (
	RuntimeUnknown RuntimeState = iota
	RuntimeIdle
	RuntimeReady
	RuntimeSynchronized
	RuntimeVisible
	RuntimeFocused
	RuntimeStopping
	RuntimeLossPending
	RuntimeExiting
)

var runtimeStateNames = [...]string{
	"UNKNOWN", "IDLE", "READY", "SYNCHRONIZED", "VISIBLE", "FOCUSED", "STOPPING", "LOSS_PENDING", "EXITING",
}

func (s RuntimeState) String() string {
	if s < 0 || int(s) >= len(runtimeStateNames) {
		return "UNKNOWN"
	}
	return runtimeStateNames[s]
}

// Event is one entry of the runtime's event queue.
type Event interface {
	isEvent()
}

type SessionStateChanged struct {
	State RuntimeState
	Time  Time
}

type InstanceLossPending struct {
	LossTime Time
}

// UnknownEvent stands for event kinds the engine ignores.
type UnknownEvent struct {
	Kind string
}

func (SessionStateChanged) isEvent() {}
func (InstanceLossPending) isEvent() {}
func (UnknownEvent) isEvent()        {}

// BlendMode is the environment blend mode of composed frames.
type BlendMode int

const (
	BlendOpaque     BlendMode = 1
	BlendAdditive   BlendMode = 2
	BlendAlphaBlend BlendMode = 3
)

func (b BlendMode) String() string {
	switch b {
	case BlendOpaque:
		return "opaque"
	case BlendAdditive:
		return "additive"
	case BlendAlphaBlend:
		return "alpha_blend"
	}
	return "unknown"
}

func ParseBlendMode(name string) (BlendMode, error) {
	for _, b := range []BlendMode{BlendOpaque, BlendAdditive, BlendAlphaBlend} {
		if b.String() == name {
			return b, nil
		}
	}
	return 0, errors.Errorf("unknown blend mode %q", name)
}

// GraphicsRequirements is the range of graphics API versions the runtime accepts.
type GraphicsRequirements struct {
	MinAPIVersion Version
	MaxAPIVersion Version
}

// ViewConfigView is the runtime's recommendation for one view of the primary
// stereo configuration.
type ViewConfigView struct {
	RecommendedWidth   uint32
	RecommendedHeight  uint32
	MaxWidth           uint32
	MaxHeight          uint32
	RecommendedSamples uint32
}

// SessionBinding binds a runtime session to the engine's device and queue.
type SessionBinding struct {
	Handles     GraphicsHandles
	QueueFamily uint32
	QueueIndex  uint32
	// Device is the engine device, used by in-process runtimes to allocate
	// swapchain images.
	Device Device
}

// Runtime is the VR runtime instance.
type Runtime interface {
	GraphicsRequirements() (GraphicsRequirements, error)
	RequiredInstanceExtensions() ([]string, error)
	RequiredDeviceExtensions() ([]string, error)
	DeviceSelector
	// ViewConfigurationViews describes the views of the primary stereo configuration.
	ViewConfigurationViews() ([]ViewConfigView, error)
	EnvironmentBlendModes() ([]BlendMode, error)
	CreateSession(binding SessionBinding) (Session, error)
	// PollEvent returns the next pending event without blocking; ok is false when
	// the queue is empty.
	PollEvent() (ev Event, ok bool, err error)
	Destroy()
}

// DeviceSelector names the physical device the headset is attached to.
type DeviceSelector interface {
	// GraphicsDevice returns the physical device to use with the given graphics
	// instance handle. A nil device leaves the choice to the backend.
	GraphicsDevice(instance any) (physicalDevice any, err error)
}

// FrameState is returned by WaitFrame.
type FrameState struct {
	PredictedDisplayTime   Time
	PredictedDisplayPeriod time.Duration
	ShouldRender           bool
}

// SwapchainDesc describes a runtime owned swapchain.
type SwapchainDesc struct {
	Usage       ImageUsage
	Format      Format
	SampleCount uint32
	Width       uint32
	Height      uint32
	FaceCount   uint32
	ArraySize   uint32
	MipCount    uint32
}

// Swapchain is a runtime owned chain of presentable images.
type Swapchain interface {
	Images() ([]Image, error)
	// Acquire returns the index of the next image to render into.
	Acquire() (uint32, error)
	// Wait blocks until the acquired image may be written.
	Wait(timeout time.Duration) error
	Release() error
	Destroy()
}

// ReferenceSpaceType names the origin of a reference space.
type ReferenceSpaceType int

const (
	SpaceView ReferenceSpaceType = iota + 1
	SpaceLocal
	SpaceStage
)

type Space interface {
	Type() ReferenceSpaceType
	Destroy()
}

// PoseActionDesc binds one pose action to an input path.
type PoseActionDesc struct {
	Name          string
	LocalizedName string
	Binding       string
}

// ActionSetDesc describes an action set with pose actions suggested for one
// interaction profile.
type ActionSetDesc struct {
	Name               string
	LocalizedName      string
	Priority           uint32
	InteractionProfile string
	Poses              []PoseActionDesc
}

type ActionSet interface {
	// LocatePose locates the named pose action in space at time t. ok is false when
	// the pose is not tracked.
	LocatePose(action string, space Space, t Time) (pose Pose, ok bool, err error)
	Destroy()
}

// Session is a running VR session bound to the engine's device.
type Session interface {
	// Begin starts the primary stereo view configuration.
	Begin() error
	End() error
	RequestExit() error

	WaitFrame() (FrameState, error)
	BeginFrame() error
	EndFrame(end FrameEnd) error

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	CreateReferenceSpace(kind ReferenceSpaceType, pose Pose) (Space, error)
	// AttachActionSet creates the action set, suggests its bindings and attaches
	// it to the session.
	AttachActionSet(desc ActionSetDesc) (ActionSet, error)
	SyncActions(set ActionSet) error
	// LocateViews returns one view per eye for the display time.
	LocateViews(space Space, t Time) ([]View, error)
	Destroy()
}

// CompositionLayer is a layer submitted with EndFrame.
type CompositionLayer interface {
	isCompositionLayer()
}

// SubImage selects one array layer rect of a swapchain image.
type SubImage struct {
	Swapchain  Swapchain
	Rect       Rect2D
	ArrayIndex uint32
}

type ProjectionView struct {
	Pose     Pose
	Fov      Fov
	SubImage SubImage
}

// ProjectionLayer is a stereo projection composed in a reference space.
type ProjectionLayer struct {
	Space Space
	Views []ProjectionView
}

func (*ProjectionLayer) isCompositionLayer() {}

// FrameEnd is the argument of EndFrame. Layers is empty for skipped frames.
type FrameEnd struct {
	DisplayTime Time
	BlendMode   BlendMode
	Layers      []CompositionLayer
}
