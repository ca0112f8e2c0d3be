package dieselxr

import (
	"time"

	"github.com/pkg/errors"
)

type surfaceImage struct {
	image       Image
	view        ImageView
	depth       Image
	depthView   ImageView
	framebuffer Framebuffer
}

// PresentationSurface is the runtime swapchain plus one array view and one
// framebuffer per swapchain image. The images belong to the runtime; the
// surface leases one at a time between Acquire and Release.
type PresentationSurface struct {
	device    Device
	layout    *RenderTargetLayout
	swapchain Swapchain
	extent    Extent2D
	images    []surfaceImage

	acquired bool
	current  uint32
}

// SwapchainDescFor derives the stereo swapchain parameters from the first view's
// recommended resolution.
func SwapchainDescFor(views []ViewConfigView, color Format) (SwapchainDesc, error) {
	if len(views) < ViewCount {
		return SwapchainDesc{}, errors.Wrapf(ErrViewConfiguration, "%d views", len(views))
	}
	v := views[0]
	if v.RecommendedWidth == 0 || v.RecommendedHeight == 0 {
		return SwapchainDesc{}, errors.Wrapf(ErrViewConfiguration, "recommended size %dx%d", v.RecommendedWidth, v.RecommendedHeight)
	}
	return SwapchainDesc{
		Usage:       ImageUsageColorAttachment | ImageUsageSampled,
		Format:      color,
		SampleCount: 1,
		Width:       v.RecommendedWidth,
		Height:      v.RecommendedHeight,
		FaceCount:   1,
		ArraySize:   ViewCount,
		MipCount:    1,
	}, nil
}

// BuildPresentationSurface creates the runtime swapchain and the per image views
// and framebuffers against layout. On failure everything created so far is
// destroyed again.
func BuildPresentationSurface(dev Device, session Session, views []ViewConfigView, layout *RenderTargetLayout) (*PresentationSurface, error) {
	desc, err := SwapchainDescFor(views, layout.ColorFormat())
	if err != nil {
		return nil, err
	}
	sc, err := session.CreateSwapchain(desc)
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	s := &PresentationSurface{
		device:    dev,
		layout:    layout,
		swapchain: sc,
		extent:    Extent2D{Width: desc.Width, Height: desc.Height},
	}
	if err := s.buildImages(); err != nil {
		s.Destroy()
		return nil, err
	}
	Logger().Info("presentation surface built", "images", len(s.images), "width", s.extent.Width, "height", s.extent.Height)
	return s, nil
}

func (s *PresentationSurface) buildImages() error {
	images, err := s.swapchain.Images()
	if err != nil {
		return errors.Wrap(err, "swapchain images")
	}
	for i, img := range images {
		si := surfaceImage{image: img}
		// Appended first so a partial failure still gets cleaned up.
		s.images = append(s.images, si)
		cur := &s.images[len(s.images)-1]

		cur.view, err = s.device.CreateImageView(img, ImageViewDesc{
			Format:     s.layout.ColorFormat(),
			BaseLayer:  0,
			LayerCount: ViewCount,
		})
		if err != nil {
			return errors.Wrapf(err, "image view %d", i)
		}
		attachments := []ImageView{cur.view}

		if s.layout.HasDepth() {
			cur.depth, err = s.device.CreateImage(ImageDesc{
				Format:      s.layout.DepthFormat(),
				Extent:      s.extent,
				ArrayLayers: ViewCount,
				Usage:       ImageUsageDepthAttachment,
			})
			if err != nil {
				return errors.Wrapf(err, "depth image %d", i)
			}
			cur.depthView, err = s.device.CreateImageView(cur.depth, ImageViewDesc{
				Format:     s.layout.DepthFormat(),
				BaseLayer:  0,
				LayerCount: ViewCount,
			})
			if err != nil {
				return errors.Wrapf(err, "depth view %d", i)
			}
			attachments = append(attachments, cur.depthView)
		}

		// Multiview framebuffers have one layer, the view mask selects the array layers.
		cur.framebuffer, err = s.device.CreateFramebuffer(FramebufferDesc{
			RenderPass:  s.layout.Handle(),
			Attachments: attachments,
			Extent:      s.extent,
			Layers:      1,
		})
		if err != nil {
			return errors.Wrapf(err, "framebuffer %d", i)
		}
	}
	return nil
}

// Acquire leases the next swapchain image. A second Acquire before Release
// fails with ErrOutOfOrderAcquire.
func (s *PresentationSurface) Acquire() (uint32, error) {
	if s.swapchain == nil {
		return 0, ErrTornDown
	}
	if s.acquired {
		return s.current, ErrOutOfOrderAcquire
	}
	idx, err := s.swapchain.Acquire()
	if err != nil {
		return 0, errors.Wrap(err, "acquire swapchain image")
	}
	if int(idx) >= len(s.images) {
		return 0, errors.Errorf("runtime returned image index %d of %d", idx, len(s.images))
	}
	s.acquired = true
	s.current = idx
	return idx, nil
}

// WaitReady blocks until the acquired image may be written.
func (s *PresentationSurface) WaitReady(timeout time.Duration) error {
	if !s.acquired {
		return ErrImageNotAcquired
	}
	return errors.Wrap(s.swapchain.Wait(timeout), "wait swapchain image")
}

func (s *PresentationSurface) Release() error {
	if !s.acquired {
		return ErrReleaseWithoutAcquire
	}
	if err := s.swapchain.Release(); err != nil {
		return errors.Wrap(err, "release swapchain image")
	}
	s.acquired = false
	return nil
}

func (s *PresentationSurface) Acquired() bool {
	return s.acquired
}

func (s *PresentationSurface) Framebuffer(idx uint32) Framebuffer {
	return s.images[idx].framebuffer
}

func (s *PresentationSurface) Extent() Extent2D {
	return s.extent
}

func (s *PresentationSurface) Rect() Rect2D {
	return Rect2D{Extent: s.extent}
}

func (s *PresentationSurface) ImageCount() int {
	return len(s.images)
}

func (s *PresentationSurface) Swapchain() Swapchain {
	return s.swapchain
}

// SubImage is the composition sub image of one eye: same rect, array layer eye.
func (s *PresentationSurface) SubImage(eye uint32) SubImage {
	return SubImage{
		Swapchain:  s.swapchain,
		Rect:       s.Rect(),
		ArrayIndex: eye,
	}
}

// Destroy releases framebuffers, views and depth images, then the swapchain.
// The device must be idle.
func (s *PresentationSurface) Destroy() {
	for i := len(s.images) - 1; i >= 0; i-- {
		img := s.images[i]
		if img.framebuffer != nil {
			s.device.DestroyFramebuffer(img.framebuffer)
		}
		if img.depthView != nil {
			s.device.DestroyImageView(img.depthView)
		}
		if img.depth != nil {
			s.device.DestroyImage(img.depth)
		}
		if img.view != nil {
			s.device.DestroyImageView(img.view)
		}
	}
	s.images = nil
	if s.swapchain != nil {
		s.swapchain.Destroy()
		s.swapchain = nil
	}
	s.acquired = false
}
