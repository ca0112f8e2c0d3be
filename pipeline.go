package dieselxr

import "github.com/pkg/errors"

// PipelineState is the graphics pipeline compiled against a RenderTargetLayout.
// Shader and fixed function content comes from the renderer.
type PipelineState struct {
	device   Device
	pipeline Pipeline
	layout   PipelineLayout
}

func NewPipelineState(dev Device, target *RenderTargetLayout, desc PipelineDesc) (*PipelineState, error) {
	if err := validatePipelineDesc(desc, target); err != nil {
		return nil, err
	}
	pipeline, layout, err := dev.CreatePipeline(target.Handle(), desc)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline")
	}
	Logger().Info("pipeline created", "stages", len(desc.Stages), "depth_test", desc.DepthTest)
	return &PipelineState{
		device:   dev,
		pipeline: pipeline,
		layout:   layout,
	}, nil
}

func validatePipelineDesc(desc PipelineDesc, target *RenderTargetLayout) error {
	var vertex bool
	for _, s := range desc.Stages {
		if len(s.Code) == 0 || len(s.Code)%4 != 0 {
			return errors.Errorf("shader stage %#x: SPIR-V code must be a non-empty multiple of 4 bytes", uint32(s.Stage))
		}
		if s.Stage == ShaderVertex {
			vertex = true
		}
	}
	if !vertex {
		return errors.New("pipeline has no vertex stage")
	}
	if desc.DepthTest && !target.HasDepth() {
		return errors.New("depth test needs a depth attachment")
	}
	return nil
}

func (p *PipelineState) Handle() Pipeline {
	return p.pipeline
}

func (p *PipelineState) Layout() PipelineLayout {
	return p.layout
}

// Destroy releases the pipeline before its layout.
func (p *PipelineState) Destroy() {
	if p.pipeline != nil {
		p.device.DestroyPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		p.device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
}
