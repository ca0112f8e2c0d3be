package dieselxr

import "github.com/pkg/errors"

// StereoViewMask has one bit per rendered view.
const StereoViewMask uint32 = 1<<ViewCount - 1

// RenderTargetLayout is the multiview render pass every framebuffer and the
// pipeline are built against. It is immutable once created.
type RenderTargetLayout struct {
	device Device
	pass   RenderPass
	desc   RenderPassDesc
}

// StereoRenderPassDesc describes one subpass rendering both eyes with a color
// attachment and, unless depth is FormatUndefined, a depth attachment.
func StereoRenderPassDesc(color, depth Format) RenderPassDesc {
	desc := RenderPassDesc{
		Color: AttachmentDesc{
			Format:        color,
			Clear:         true,
			Store:         true,
			InitialLayout: LayoutUndefined,
			FinalLayout:   LayoutColorAttachmentOptimal,
		},
		ViewMask:        StereoViewMask,
		CorrelationMask: StereoViewMask,
		Dependency: SubpassDependency{
			SrcStage:  StageColorAttachmentOutput,
			DstStage:  StageColorAttachmentOutput,
			DstAccess: AccessColorAttachmentWrite,
		},
	}
	if depth != FormatUndefined {
		desc.Depth = &AttachmentDesc{
			Format:        depth,
			Clear:         true,
			InitialLayout: LayoutUndefined,
			FinalLayout:   LayoutDepthAttachmentOptimal,
		}
		desc.Dependency.SrcStage |= StageEarlyFragmentTests
		desc.Dependency.DstStage |= StageEarlyFragmentTests
		desc.Dependency.DstAccess |= AccessDepthAttachmentWrite
	}
	return desc
}

// NewRenderTargetLayout creates the stereo render pass. Unsupported formats fail
// with ErrUnsupportedFormat.
func NewRenderTargetLayout(dev Device, color, depth Format) (*RenderTargetLayout, error) {
	if color == FormatUndefined || color.IsDepth() || !dev.FormatSupported(color, ImageUsageColorAttachment) {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "color %s", color)
	}
	if depth != FormatUndefined && (!depth.IsDepth() || !dev.FormatSupported(depth, ImageUsageDepthAttachment)) {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "depth %s", depth)
	}

	desc := StereoRenderPassDesc(color, depth)
	pass, err := dev.CreateRenderPass(desc)
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	Logger().Info("render pass created", "color", color, "depth", depth, "view_mask", desc.ViewMask)
	return &RenderTargetLayout{
		device: dev,
		pass:   pass,
		desc:   desc,
	}, nil
}

func (l *RenderTargetLayout) Handle() RenderPass {
	return l.pass
}

func (l *RenderTargetLayout) Desc() RenderPassDesc {
	return l.desc
}

func (l *RenderTargetLayout) ColorFormat() Format {
	return l.desc.Color.Format
}

func (l *RenderTargetLayout) HasDepth() bool {
	return l.desc.Depth != nil
}

func (l *RenderTargetLayout) DepthFormat() Format {
	if l.desc.Depth == nil {
		return FormatUndefined
	}
	return l.desc.Depth.Format
}

func (l *RenderTargetLayout) Destroy() {
	if l.pass != nil {
		l.device.DestroyRenderPass(l.pass)
		l.pass = nil
	}
}
