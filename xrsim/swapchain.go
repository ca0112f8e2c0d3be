package xrsim

import (
	"sync/atomic"
	"time"

	"github.com/andewx/dieselxr"
	"github.com/pkg/errors"
)

// Swapchain implements dieselxr.Swapchain with images allocated on the engine
// device. Images are handed out round robin.
type Swapchain struct {
	session *Session
	desc    dieselxr.SwapchainDesc
	images  []dieselxr.Image

	next     uint32
	acquired bool
	waited   bool
	stale    atomic.Bool
}

var _ dieselxr.Swapchain = (*Swapchain)(nil)

func newSwapchain(s *Session, desc dieselxr.SwapchainDesc) (*Swapchain, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.Errorf("xrsim: swapchain size %dx%d", desc.Width, desc.Height)
	}
	if desc.Width > s.rt.opts.Width*2 || desc.Height > s.rt.opts.Height*2 {
		return nil, errors.Errorf("xrsim: swapchain %dx%d exceeds the maximum view size", desc.Width, desc.Height)
	}
	if desc.ArraySize == 0 || desc.FaceCount != 1 || desc.MipCount != 1 {
		return nil, errors.Errorf("xrsim: unsupported swapchain layout (array %d, faces %d, mips %d)",
			desc.ArraySize, desc.FaceCount, desc.MipCount)
	}
	dev := s.binding.Device
	if !dev.FormatSupported(desc.Format, desc.Usage) {
		return nil, errors.Wrapf(dieselxr.ErrUnsupportedFormat, "swapchain format %v", desc.Format)
	}

	sc := &Swapchain{session: s, desc: desc}
	for i := 0; i < s.rt.opts.ImageCount; i++ {
		img, err := dev.CreateImage(dieselxr.ImageDesc{
			Format:      desc.Format,
			Extent:      dieselxr.Extent2D{Width: desc.Width, Height: desc.Height},
			ArrayLayers: desc.ArraySize,
			Usage:       desc.Usage,
		})
		if err != nil {
			sc.destroyImages()
			return nil, errors.Wrapf(err, "swapchain image %d", i)
		}
		sc.images = append(sc.images, img)
	}
	dieselxr.Logger().Info("xrsim: swapchain created",
		"images", len(sc.images), "format", desc.Format, "width", desc.Width, "height", desc.Height)
	return sc, nil
}

func (sc *Swapchain) Images() ([]dieselxr.Image, error) {
	if sc.images == nil {
		return nil, dieselxr.ErrTornDown
	}
	return sc.images, nil
}

// Acquire returns the next image index. A second acquire before release is a
// call order error, as is any acquire on an invalidated swapchain.
func (sc *Swapchain) Acquire() (uint32, error) {
	if sc.images == nil {
		return 0, dieselxr.ErrTornDown
	}
	if sc.stale.Load() {
		return 0, errors.Wrap(dieselxr.ErrSurfaceOutOfDate, "xrsim: swapchain invalidated")
	}
	if sc.acquired {
		return 0, errors.Wrap(ErrCallOrder, "acquire before release")
	}
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	sc.acquired = true
	sc.waited = false
	return idx, nil
}

// Wait returns immediately: images are released only once the engine's fence
// for the previous use has been waited on.
func (sc *Swapchain) Wait(timeout time.Duration) error {
	if !sc.acquired {
		return errors.Wrap(ErrCallOrder, "wait without acquire")
	}
	sc.waited = true
	return nil
}

func (sc *Swapchain) Release() error {
	if !sc.acquired || !sc.waited {
		return errors.Wrap(ErrCallOrder, "release without acquire and wait")
	}
	sc.acquired = false
	return nil
}

func (sc *Swapchain) Destroy() {
	if sc.images == nil {
		return
	}
	sc.destroyImages()
	sc.session.forget(sc)
}

func (sc *Swapchain) destroyImages() {
	for _, img := range sc.images {
		sc.session.binding.Device.DestroyImage(img)
	}
	sc.images = nil
}
