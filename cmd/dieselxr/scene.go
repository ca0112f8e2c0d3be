package main

import (
	"github.com/andewx/dieselxr"
	"github.com/andewx/dieselxr/vkdev"
)

// sceneRenderer draws a vertex-less scene: the vertex shader generates its own
// geometry from gl_VertexIndex and gl_ViewIndex.
type sceneRenderer struct {
	stages []dieselxr.ShaderModule
	draw   dieselxr.DrawParams
	depth  bool
	logged bool
}

func newSceneRenderer(cfg dieselxr.Config) (*sceneRenderer, error) {
	vert, err := vkdev.ReadShader(cfg.Shaders.Vertex, dieselxr.ShaderVertex)
	if err != nil {
		return nil, err
	}
	frag, err := vkdev.ReadShader(cfg.Shaders.Fragment, dieselxr.ShaderFragment)
	if err != nil {
		return nil, err
	}
	return &sceneRenderer{
		stages: []dieselxr.ShaderModule{vert, frag},
		draw: dieselxr.DrawParams{
			VertexCount:   cfg.Shaders.VertexCount,
			InstanceCount: max(cfg.Shaders.InstanceCount, 1),
		},
		depth: cfg.Render.Depth,
	}, nil
}

func (r *sceneRenderer) PipelineDesc() (dieselxr.PipelineDesc, error) {
	return dieselxr.PipelineDesc{
		Stages:    r.stages,
		Topology:  dieselxr.TopologyTriangleList,
		DepthTest: r.depth,
	}, nil
}

func (r *sceneRenderer) Draw(info dieselxr.FrameInfo) dieselxr.DrawParams {
	if !r.logged && len(info.Views) > 0 {
		r.logged = true
		dieselxr.Logger().Debug("scene draw", "extent", info.Extent, "hands_valid", info.Hands.LeftValid && info.Hands.RightValid)
	}
	return r.draw
}
