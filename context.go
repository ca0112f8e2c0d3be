package dieselxr

import (
	"github.com/pkg/errors"
)

// TargetAPIVersion is the graphics API version the engine is written against.
// Multiview is core from 1.1.
var TargetAPIVersion = MakeVersion(1, 1, 0)

// MultiviewExtension is needed only by 1.0 devices.
const MultiviewExtension = "VK_KHR_multiview"

// GraphicsContext owns the logical device and its single graphics queue.
type GraphicsContext struct {
	backend    Backend
	device     Device
	family     QueueFamily
	extensions []string
}

// NewGraphicsContext checks the backend against the runtime's graphics
// requirements, selects the first graphics capable queue family and creates the
// logical device with multiview enabled. wanted lists optional device extensions.
func NewGraphicsContext(backend Backend, rt Runtime, wanted []string) (*GraphicsContext, error) {
	log := Logger()

	reqs, err := rt.GraphicsRequirements()
	if err != nil {
		return nil, errors.Wrap(err, "graphics requirements")
	}
	if err := checkAPIVersion(backend.APIVersion(), reqs); err != nil {
		return nil, err
	}
	handles := backend.Handles()
	gpu, err := rt.GraphicsDevice(handles.Instance)
	if err != nil {
		return nil, errors.Wrap(err, "runtime graphics device")
	}
	if gpu != nil && gpu != handles.PhysicalDevice {
		return nil, ErrGraphicsDevice
	}

	families, err := backend.QueueFamilies()
	if err != nil {
		return nil, errors.Wrap(err, "queue families")
	}
	family, err := selectGraphicsFamily(families)
	if err != nil {
		return nil, err
	}

	if !backend.SupportsMultiview() {
		return nil, ErrMultiviewUnsupported
	}

	actual, err := backend.DeviceExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "device extensions")
	}
	runtimeExts, err := rt.RequiredDeviceExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "runtime device extensions")
	}
	exts := NewExtensionSet(wanted, nil, actual)
	exts.Require(runtimeExts...)
	if backend.APIVersion().Major() == 1 && backend.APIVersion().Minor() == 0 {
		exts.Require(MultiviewExtension)
	}
	if ok, missing := exts.HasRequired(); !ok {
		return nil, errors.Wrapf(ErrMissingExtensions, "device: %v", missing)
	}
	if ok, missing := exts.HasWanted(); !ok {
		log.Warn("wanted device extensions not available", "missing", missing)
	}

	c := &GraphicsContext{
		backend:    backend,
		family:     family,
		extensions: exts.GetExtensions(),
	}
	c.device, err = backend.CreateDevice(DeviceDesc{
		QueueFamily: family.Index,
		Extensions:  c.extensions,
		Multiview:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create device")
	}
	log.Info("graphics device created", "queue_family", family.Index, "api", backend.APIVersion(), "extensions", len(c.extensions))
	return c, nil
}

func checkAPIVersion(v Version, reqs GraphicsRequirements) error {
	if v < reqs.MinAPIVersion || v.Major() > reqs.MaxAPIVersion.Major() {
		return errors.Wrapf(ErrAPIVersion, "have %s, runtime supports %s to %s", v, reqs.MinAPIVersion, reqs.MaxAPIVersion)
	}
	return nil
}

func selectGraphicsFamily(families []QueueFamily) (QueueFamily, error) {
	for _, f := range families {
		if f.Flags&QueueGraphics != 0 && f.Count > 0 {
			return f, nil
		}
	}
	return QueueFamily{}, ErrNoCompatibleQueue
}

func (c *GraphicsContext) Device() Device {
	return c.device
}

func (c *GraphicsContext) QueueFamily() uint32 {
	return c.family.Index
}

func (c *GraphicsContext) Extensions() []string {
	return c.extensions
}

// Binding is what the runtime needs to create a session on this device.
func (c *GraphicsContext) Binding() SessionBinding {
	h := c.backend.Handles()
	h.Device = c.device.Handle()
	return SessionBinding{
		Handles:     h,
		QueueFamily: c.device.QueueFamily(),
		QueueIndex:  c.device.QueueIndex(),
		Device:      c.device,
	}
}

// WaitIdle is the device idle barrier run before any teardown.
func (c *GraphicsContext) WaitIdle() error {
	return c.device.WaitIdle()
}

func (c *GraphicsContext) Destroy() {
	if c.device != nil {
		c.device.Destroy()
		c.device = nil
	}
}
