package dieselxr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordPass(cmd CommandStream) error {
	cmd.BeginRenderPass(RenderPassBegin{})
	cmd.SetViewport(FullViewport(Extent2D{Width: 8, Height: 8}))
	cmd.SetScissor(Rect2D{Extent: Extent2D{Width: 8, Height: 8}})
	cmd.BindPipeline("pipeline")
	cmd.Draw(DrawParams{VertexCount: 3, InstanceCount: 1})
	cmd.EndRenderPass()
	return nil
}

func TestFrameResourcesBoundsInFlight(t *testing.T) {
	for depth := 1; depth <= 4; depth++ {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			dev := newFakeDevice(&callLog{})
			f, err := NewFrameResources(dev, depth)
			require.NoError(t, err)
			require.Equal(t, depth, f.Depth())

			for frame := 0; frame < 5*depth; frame++ {
				slot, err := f.Acquire(frame)
				require.NoError(t, err)
				require.Equal(t, frame%depth, slot)
				require.NoError(t, f.Record(slot, recordPass))
				require.NoError(t, f.Submit(slot))
				require.LessOrEqual(t, f.InFlight(), depth)
			}
			assert.Equal(t, depth, dev.maxInFlight)
		})
	}
}

func TestFrameResourcesFencesStartSignaled(t *testing.T) {
	log := &callLog{}
	dev := newFakeDevice(log)
	f, err := NewFrameResources(dev, PipelineDepth)
	require.NoError(t, err)

	slot, err := f.Acquire(0)
	require.NoError(t, err)
	assert.Equal(t, SlotReady, f.State(slot))
	assert.Equal(t, 1, log.count("wait:"))
	assert.Equal(t, 1, log.count("reset:"))
}

func TestFrameResourcesReacquireWithoutSubmit(t *testing.T) {
	log := &callLog{}
	dev := newFakeDevice(log)
	f, err := NewFrameResources(dev, 1)
	require.NoError(t, err)

	_, err = f.Acquire(0)
	require.NoError(t, err)
	require.NoError(t, f.Record(0, recordPass))

	// frame abandoned before submission, the reset fence must not be waited on
	_, err = f.Acquire(1)
	require.NoError(t, err)
	assert.Equal(t, 1, log.count("wait:"))
	require.NoError(t, f.Record(0, recordPass))
	require.NoError(t, f.Submit(0))
}

func TestFrameResourcesSubmitNeedsRecording(t *testing.T) {
	f, err := NewFrameResources(newFakeDevice(&callLog{}), PipelineDepth)
	require.NoError(t, err)

	require.ErrorIs(t, f.Submit(0), ErrSlotNotRecorded)

	_, err = f.Acquire(0)
	require.NoError(t, err)
	require.ErrorIs(t, f.Submit(0), ErrSlotNotRecorded)

	require.NoError(t, f.Record(0, recordPass))
	require.NoError(t, f.Submit(0))
	assert.Equal(t, SlotSubmitted, f.State(0))

	// recording a submitted slot before acquiring it again
	require.ErrorIs(t, f.Record(0, recordPass), ErrSlotBusy)
	require.ErrorIs(t, f.Submit(0), ErrSlotNotRecorded)
}

func TestFrameResourcesRejectsBadCommandSequences(t *testing.T) {
	tests := []struct {
		name string
		fn   func(CommandStream)
	}{
		{"empty", func(CommandStream) {}},
		{"no end", func(c CommandStream) {
			c.BeginRenderPass(RenderPassBegin{})
			c.SetViewport(Viewport{})
			c.SetScissor(Rect2D{})
			c.BindPipeline("p")
			c.Draw(DrawParams{VertexCount: 3})
		}},
		{"draw without pipeline", func(c CommandStream) {
			c.BeginRenderPass(RenderPassBegin{})
			c.SetViewport(Viewport{})
			c.SetScissor(Rect2D{})
			c.Draw(DrawParams{VertexCount: 3})
			c.EndRenderPass()
		}},
		{"draw without scissor", func(c CommandStream) {
			c.BeginRenderPass(RenderPassBegin{})
			c.SetViewport(Viewport{})
			c.BindPipeline("p")
			c.Draw(DrawParams{VertexCount: 3})
			c.EndRenderPass()
		}},
		{"bind outside pass", func(c CommandStream) {
			c.BindPipeline("p")
			c.BeginRenderPass(RenderPassBegin{})
		}},
		{"two passes", func(c CommandStream) {
			_ = recordPass(c)
			c.BeginRenderPass(RenderPassBegin{})
		}},
		{"two draws", func(c CommandStream) {
			c.BeginRenderPass(RenderPassBegin{})
			c.SetViewport(Viewport{})
			c.SetScissor(Rect2D{})
			c.BindPipeline("p")
			c.Draw(DrawParams{VertexCount: 3})
			c.Draw(DrawParams{VertexCount: 3})
			c.EndRenderPass()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFrameResources(newFakeDevice(&callLog{}), 1)
			require.NoError(t, err)
			_, err = f.Acquire(0)
			require.NoError(t, err)

			err = f.Record(0, func(c CommandStream) error {
				tt.fn(c)
				return nil
			})
			require.ErrorIs(t, err, ErrCommandSequence)
			assert.Equal(t, SlotReady, f.State(0))
			require.ErrorIs(t, f.Submit(0), ErrSlotNotRecorded)
		})
	}
}

func TestFrameResourcesDestroy(t *testing.T) {
	log := &callLog{}
	f, err := NewFrameResources(newFakeDevice(log), PipelineDepth)
	require.NoError(t, err)

	f.Destroy()
	assert.Equal(t, 2, log.count("destroy:fence"))
	assert.Equal(t, 2, log.count("destroy:cmd"))
	assert.Equal(t, 1, log.count("destroy:command_pool"))
	assert.Greater(t, log.index("destroy:command_pool", 0), log.index("destroy:cmd", 1))

	_, err = f.Acquire(0)
	require.ErrorIs(t, err, ErrTornDown)
}

func TestNewFrameResourcesCleansUpOnFailure(t *testing.T) {
	log := &callLog{}
	dev := newFakeDevice(log)
	dev.failOn["fence"] = assert.AnError

	_, err := NewFrameResources(dev, PipelineDepth)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, log.count("destroy:cmd"))
	assert.Equal(t, 1, log.count("destroy:command_pool"))

	_, err = NewFrameResources(dev, 0)
	require.Error(t, err)
}
