package dieselxr

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	log      *callLog
	dev      *fakeDevice
	backend  *fakeBackend
	rt       *fakeRuntime
	renderer *fakeRenderer
	running  *KeepRunning
	engine   *Engine
}

func newEngineFixture(t *testing.T, mutate func(f *engineFixture)) *engineFixture {
	t.Helper()
	log := &callLog{}
	dev := newFakeDevice(log)
	f := &engineFixture{
		log:      log,
		dev:      dev,
		backend:  newFakeBackend(dev),
		rt:       newFakeRuntime(log),
		renderer: newFakeRenderer(),
		running:  NewKeepRunning(),
	}
	if mutate != nil {
		mutate(f)
	}
	e, err := NewEngine(Options{
		Config:   DefaultConfig(),
		Backend:  f.backend,
		Runtime:  f.rt,
		Renderer: f.renderer,
		Running:  f.running,
	})
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *engineFixture) tick(t *testing.T) bool {
	t.Helper()
	done, err := f.engine.Tick()
	require.NoError(t, err)
	return done
}

func (f *engineFixture) start(t *testing.T) {
	t.Helper()
	f.rt.push(SessionStateChanged{State: RuntimeReady})
	require.False(t, f.tick(t))
	require.Equal(t, SessionRunning, f.engine.State())
}

func TestEngineSkipsFramesWhenRuntimeSaysNotToRender(t *testing.T) {
	f := newEngineFixture(t, func(f *engineFixture) {
		f.rt.session.shouldRender = func(int) bool { return false }
	})
	f.rt.push(SessionStateChanged{State: RuntimeReady})

	for i := 0; i < 3; i++ {
		require.False(t, f.tick(t))
	}

	require.Len(t, f.rt.session.ended, 3)
	for _, end := range f.rt.session.ended {
		assert.Empty(t, end.Layers)
		assert.Equal(t, BlendOpaque, end.BlendMode)
	}
	assert.Zero(t, f.dev.submits)
	assert.Empty(t, f.rt.session.swapchains, "surface is built lazily on the first rendered frame")
	assert.Equal(t, 3, f.engine.Stats().Skipped)
}

func TestEngineBeginsSessionOnceOnReady(t *testing.T) {
	f := newEngineFixture(t, nil)
	require.Equal(t, SessionIdle, f.engine.State())

	f.start(t)

	assert.Equal(t, 1, f.rt.session.begins)
	assert.Equal(t, SessionRunning, f.engine.State())
}

func TestEngineRotatesSlotsAfterFenceSignal(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	require.False(t, f.tick(t))
	require.False(t, f.tick(t))

	require.Len(t, f.renderer.infos, 3)
	assert.Equal(t, []int{0, 1, 0}, []int{f.renderer.infos[0].Slot, f.renderer.infos[1].Slot, f.renderer.infos[2].Slot})

	submits := f.log.with("submit:")
	require.Len(t, submits, 3)
	first := strings.Split(submits[0], ":")
	third := strings.Split(submits[2], ":")
	assert.Equal(t, first[1], third[1], "third frame reuses the first command buffer")
	assert.Equal(t, first[2], third[2], "and its fence")

	// Slot 0 is waited on after its first submission and before it is recorded again.
	fence := first[2]
	submitted := f.log.index("submit:", 0)
	waited := -1
	for i := submitted + 1; i < len(f.log.calls); i++ {
		if f.log.calls[i] == "wait:"+fence {
			waited = i
			break
		}
	}
	require.Greater(t, waited, submitted)
	rerecorded := f.log.index("begin_cmd:"+first[1], 1)
	assert.Greater(t, rerecorded, waited)
	assert.LessOrEqual(t, f.dev.maxInFlight, PipelineDepth)
}

func TestEngineAccessorsFollowFrames(t *testing.T) {
	f := newEngineFixture(t, nil)
	assert.Equal(t, SessionIdle, f.engine.State())
	assert.Nil(t, f.engine.Surface(), "surface is created by the first rendered frame")
	assert.Equal(t, 0, f.engine.FrameIndex())

	f.start(t)
	assert.NotNil(t, f.engine.Surface())
	assert.Equal(t, 1, f.engine.FrameIndex())
	require.False(t, f.tick(t))
	assert.Equal(t, 0, f.engine.FrameIndex())
	assert.Equal(t, 2, f.engine.Stats().Rendered)
}

func TestEngineComposesStereoProjectionLayer(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)

	end := f.rt.session.ended[len(f.rt.session.ended)-1]
	require.Len(t, end.Layers, 1)
	layer, ok := end.Layers[0].(*ProjectionLayer)
	require.True(t, ok)
	require.Len(t, layer.Views, 2)
	for eye, v := range layer.Views {
		assert.Equal(t, uint32(eye), v.SubImage.ArrayIndex)
		assert.Equal(t, Rect2D{Extent: Extent2D{Width: 64, Height: 48}}, v.SubImage.Rect)
	}
	assert.Equal(t, SpaceStage, layer.Space.Type())
	assert.Equal(t, 1, f.rt.session.syncs)

	sc := f.rt.session.swapchains[0]
	assert.Equal(t, uint32(2), f.rt.session.swapchainDesc.ArraySize)
	assert.Equal(t, 1, sc.releases)
	assert.False(t, sc.acquired)

	// one complete render pass recorded
	cmds := f.log.with("cmd:")
	require.Len(t, cmds, 6)
	assert.Contains(t, cmds[4], ":draw:3:1")
}

func TestEngineStopsOnInstanceLossAndTearsDown(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	require.False(t, f.tick(t))
	require.Equal(t, 2, f.dev.pending, "both slots have outstanding work")

	f.rt.push(InstanceLossPending{})
	require.True(t, f.tick(t))
	assert.Equal(t, SessionLossPending, f.engine.State())
	submits := f.dev.submits

	require.NoError(t, f.engine.Teardown())
	assert.Equal(t, submits, f.dev.submits)
	assert.Empty(t, f.dev.violations)

	idle := f.log.index("wait_idle", 0)
	firstDestroy := f.log.index("destroy:", 0)
	require.GreaterOrEqual(t, idle, 0)
	assert.Less(t, idle, firstDestroy)
}

func TestEngineTeardownReversesConstruction(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	require.NoError(t, f.engine.Teardown())

	var order []string
	for _, c := range f.log.with("destroy:") {
		kind := strings.TrimPrefix(c, "destroy:")
		if i := strings.IndexByte(kind, '#'); i >= 0 {
			kind = kind[:i]
		}
		if len(order) == 0 || order[len(order)-1] != kind {
			order = append(order, kind)
		}
	}
	assert.Equal(t, []string{
		"framebuffer", "image_view", "framebuffer", "image_view", "framebuffer", "image_view",
		"swapchain0",
		"action_set",
		"space",
		"session",
		"fence",
		"cmd",
		"command_pool",
		"pipeline",
		"pipeline_layout",
		"render_pass",
		"device",
	}, order)

	// Second teardown is a no-op.
	calls := len(f.log.calls)
	require.NoError(t, f.engine.Teardown())
	assert.Len(t, f.log.calls, calls)
}

func TestEngineTeardownDestroysNothingWhenIdleFails(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	f.dev.idleErr = errors.New("device lost")

	err := f.engine.Teardown()
	require.Error(t, err)
	assert.Zero(t, f.log.count("destroy:"))
}

func TestEngineGracefulStop(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)

	f.running.Stop()
	// exit request, then Stopping ends the session and Exiting ends the loop
	require.True(t, f.tick(t))
	assert.Equal(t, 1, f.rt.session.exits)
	assert.Equal(t, 1, f.rt.session.ends)
	assert.Equal(t, SessionExiting, f.engine.State())
}

func TestEngineStopWhileRuntimeAlreadyStopping(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	f.rt.session.exitRefusal = errors.Wrap(ErrSessionNotRunning, "stopping")

	f.running.Stop()
	require.True(t, f.tick(t))
	assert.Equal(t, 1, f.rt.session.ends)
	assert.Equal(t, SessionExiting, f.engine.State())
}

func TestEngineStopAfterSessionEndedWaitsForExit(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	f.rt.push(SessionStateChanged{State: RuntimeStopping})
	require.False(t, f.tick(t))
	require.Equal(t, SessionIdle, f.engine.State())

	f.running.Stop()
	require.False(t, f.tick(t), "session ended, waiting for the runtime to exit")
	assert.Zero(t, f.rt.session.exits)

	f.rt.push(SessionStateChanged{State: RuntimeExiting})
	require.True(t, f.tick(t))
	assert.Equal(t, SessionExiting, f.engine.State())
}

func TestEngineStopRequestRefusedWhileRunning(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.start(t)
	f.rt.session.exitRefusal = errors.New("runtime busy")
	f.rt.session.exitIgnored = true

	f.running.Stop()
	done, err := f.engine.Tick()
	require.True(t, done)
	require.Error(t, err)
	assert.Equal(t, SessionRunning, f.engine.State())
}

func TestEngineStopBeforeRunning(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.running.Stop()

	require.True(t, f.tick(t))
	assert.Zero(t, f.rt.session.exits)
	assert.Zero(t, f.rt.session.waits)
}

func TestEngineRunTearsDownAfterExit(t *testing.T) {
	f := newEngineFixture(t, func(f *engineFixture) {
		f.rt.session.shouldRender = func(n int) bool {
			if n == 4 {
				f.rt.push(SessionStateChanged{State: RuntimeExiting})
			}
			return true
		}
	})
	f.rt.push(SessionStateChanged{State: RuntimeReady})

	require.NoError(t, f.engine.Run())
	assert.Equal(t, 4, f.dev.submits)
	assert.Equal(t, 1, f.log.count("destroy:device"))
	assert.Empty(t, f.dev.violations)
}

func TestEngineRebuildsOutOfDateSurfaceOnce(t *testing.T) {
	f := newEngineFixture(t, func(f *engineFixture) {
		f.rt.session.acquireErrs = []error{nil, errors.Wrap(ErrSurfaceOutOfDate, "acquire")}
	})
	f.start(t)
	require.False(t, f.tick(t))

	require.Len(t, f.rt.session.swapchains, 2)
	assert.Less(t, f.log.index("wait_idle", 0), f.log.index("destroy:swapchain0", 0))
	assert.Equal(t, 2, f.dev.submits)
}

func TestEngineFailsOnSecondOutOfDate(t *testing.T) {
	f := newEngineFixture(t, func(f *engineFixture) {
		f.rt.session.staleSwapchains = 2
	})
	f.rt.push(SessionStateChanged{State: RuntimeReady})

	done, err := f.engine.Tick()
	require.Error(t, err)
	assert.True(t, done)
	assert.True(t, IsSurfaceOutOfDate(err))
	assert.Len(t, f.rt.session.swapchains, 2)
	assert.Zero(t, f.dev.submits)
}

func TestNewEngineTearsDownOnSetupFailure(t *testing.T) {
	log := &callLog{}
	dev := newFakeDevice(log)
	dev.failOn["pipeline"] = errors.New("bad shader")

	_, err := NewEngine(Options{
		Config:   DefaultConfig(),
		Backend:  newFakeBackend(dev),
		Runtime:  newFakeRuntime(log),
		Renderer: newFakeRenderer(),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"destroy:render_pass#1", "destroy:device"}, log.with("destroy:"))
}

func TestNewEngineRejectsUnsupportedColorFormat(t *testing.T) {
	log := &callLog{}
	dev := newFakeDevice(log)
	dev.unsupported[FormatR8G8B8A8Srgb] = true

	_, err := NewEngine(Options{
		Config:   DefaultConfig(),
		Backend:  newFakeBackend(dev),
		Runtime:  newFakeRuntime(log),
		Renderer: newFakeRenderer(),
	})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, 1, log.count("destroy:device"))
}

func TestEngineUsesFirstBlendModeAndBinding(t *testing.T) {
	f := newEngineFixture(t, func(f *engineFixture) {
		f.rt.blend = []BlendMode{BlendAdditive, BlendOpaque}
	})
	assert.Equal(t, BlendAdditive, f.engine.BlendMode())
	assert.Equal(t, "device", f.rt.binding.Handles.Device)
	assert.Equal(t, "gpu", f.rt.binding.Handles.PhysicalDevice)
	assert.Equal(t, uint32(1), f.backend.desc.QueueFamily)
}
