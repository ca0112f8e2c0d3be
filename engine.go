package dieselxr

import (
	"time"

	"github.com/pkg/errors"
)

// Renderer is the external collaborator supplying pipeline content and the draw
// call recorded each frame.
type Renderer interface {
	PipelineDesc() (PipelineDesc, error)
	Draw(info FrameInfo) DrawParams
}

// FrameInfo is what the renderer sees of a frame. Views, Eyes and Hands come from
// the most recent composition, rendering happens before this frame's views are
// located.
type FrameInfo struct {
	FrameIndex  int
	Slot        int
	ImageIndex  uint32
	DisplayTime Time
	Extent      Extent2D
	Views       []View
	Eyes        []EyeMatrices
	Hands       HandPoses
}

// Options wires an Engine to its graphics backend, VR runtime and scene.
type Options struct {
	Config   Config
	Backend  Backend
	Runtime  Runtime
	Renderer Renderer
	// Running is checked once per tick; nil never stops.
	Running *KeepRunning
	// StatsInterval is how often frame stats are logged, 0 disables it.
	StatsInterval time.Duration
}

// Engine is the frame loop and the owner of every GPU object it renders with.
type Engine struct {
	cfg      Config
	runtime  Runtime
	renderer Renderer
	running  *KeepRunning

	gfx      *GraphicsContext
	layout   *RenderTargetLayout
	pipeline *PipelineState
	frames   *FrameResources
	session  Session
	stage    Space
	input    *Input
	driver   *SessionDriver
	surface  *PresentationSurface

	views     []ViewConfigView
	blend     BlendMode
	lifetime  Lifetime
	stats     *FrameStats
	lastViews []View

	frameIndex    int
	exitRequested bool
}

// NewEngine builds the device, render pass, pipeline, frame ring and session in
// that order. The presentation surface is built on the first rendered frame.
// On failure everything built so far is torn down again.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Backend == nil || opts.Runtime == nil || opts.Renderer == nil {
		return nil, errors.New("engine needs a backend, a runtime and a renderer")
	}
	running := opts.Running
	if running == nil {
		running = NewKeepRunning()
	}
	e := &Engine{
		cfg:      opts.Config,
		runtime:  opts.Runtime,
		renderer: opts.Renderer,
		running:  running,
		stats:    NewFrameStats(opts.StatsInterval),
	}
	if err := e.init(opts.Backend); err != nil {
		if terr := e.lifetime.Teardown(); terr != nil {
			Logger().Error("teardown after failed setup", "err", terr)
		}
		return nil, err
	}
	return e, nil
}

func (e *Engine) init(backend Backend) (err error) {
	e.gfx, err = NewGraphicsContext(backend, e.runtime, e.cfg.Vulkan.DeviceExtensions)
	if err != nil {
		return err
	}
	e.lifetime.Push("device", e.gfx.Destroy)
	e.lifetime.SetBarrier(e.gfx.WaitIdle)
	dev := e.gfx.Device()

	color, depth := e.cfg.Formats()
	if e.layout, err = NewRenderTargetLayout(dev, color, depth); err != nil {
		return err
	}
	e.lifetime.Push("render pass", e.layout.Destroy)

	desc, err := e.renderer.PipelineDesc()
	if err != nil {
		return errors.Wrap(err, "renderer pipeline")
	}
	if e.pipeline, err = NewPipelineState(dev, e.layout, desc); err != nil {
		return err
	}
	e.lifetime.Push("pipeline", e.pipeline.Destroy)

	if e.frames, err = NewFrameResources(dev, PipelineDepth); err != nil {
		return err
	}
	e.lifetime.Push("frame resources", e.frames.Destroy)

	if e.views, err = e.runtime.ViewConfigurationViews(); err != nil {
		return errors.Wrap(err, "view configuration")
	}
	if len(e.views) < ViewCount {
		return errors.Wrapf(ErrViewConfiguration, "%d views", len(e.views))
	}
	modes, err := e.runtime.EnvironmentBlendModes()
	if err != nil {
		return errors.Wrap(err, "blend modes")
	}
	if len(modes) == 0 {
		return errors.New("runtime reported no environment blend mode")
	}
	e.blend = modes[0]

	if e.session, err = e.runtime.CreateSession(e.gfx.Binding()); err != nil {
		return errors.Wrap(err, "create session")
	}
	e.lifetime.Push("session", e.session.Destroy)

	if e.stage, err = e.session.CreateReferenceSpace(SpaceStage, IdentityPose); err != nil {
		return errors.Wrap(err, "stage space")
	}
	e.lifetime.Push("stage space", e.stage.Destroy)

	if e.input, err = NewInput(e.session, e.stage, DefaultActionSet()); err != nil {
		return err
	}
	e.lifetime.Push("action set", e.input.Destroy)

	// Slot for the lazily built surface, so it is destroyed first.
	e.lifetime.Push("presentation surface", e.destroySurface)

	e.driver = NewSessionDriver(e.runtime, e.session)
	Logger().Info("engine ready", "blend_mode", e.blend, "views", len(e.views))
	return nil
}

// Run ticks until the session ends or a frame fails, then tears everything down.
// The returned error is the first failure, if any.
func (e *Engine) Run() error {
	var loopErr error
	for {
		done, err := e.Tick()
		if err != nil {
			Logger().Error("frame loop stopped", "err", err, "state", e.driver.State())
			loopErr = err
			break
		}
		if done {
			break
		}
	}
	if err := e.Teardown(); err != nil {
		if loopErr != nil {
			Logger().Error("teardown", "err", err)
			return loopErr
		}
		return err
	}
	return loopErr
}

// Tick runs one frame. done is true once the loop should stop.
func (e *Engine) Tick() (done bool, err error) {
	log := Logger()

	state, err := e.driver.Poll()
	if err != nil {
		return true, errors.Wrap(err, "poll events")
	}
	if state.Terminal() {
		log.Info("session ended", "state", state)
		return true, nil
	}

	if !e.running.Continue() && !e.exitRequested {
		if done, err := e.requestExit(); done || err != nil {
			return done, err
		}
		if state = e.driver.State(); state.Terminal() {
			log.Info("session ended", "state", state)
			return true, nil
		}
	}

	fs, err := e.session.WaitFrame()
	if err != nil {
		return true, errors.Wrap(err, "wait frame")
	}
	if err := e.session.BeginFrame(); err != nil {
		return true, errors.Wrap(err, "begin frame")
	}

	if !e.driver.CanSubmit() || !fs.ShouldRender {
		e.stats.Tick(false)
		log.Debug("frame skipped", "state", state, "should_render", fs.ShouldRender)
		if err := e.session.EndFrame(FrameEnd{DisplayTime: fs.PredictedDisplayTime, BlendMode: e.blend}); err != nil {
			return true, errors.Wrap(err, "end frame")
		}
		return false, nil
	}

	if err := e.render(fs); err != nil {
		return true, err
	}
	layer, err := e.compose(fs)
	if err != nil {
		return true, err
	}
	if err := e.session.EndFrame(FrameEnd{
		DisplayTime: fs.PredictedDisplayTime,
		BlendMode:   e.blend,
		Layers:      []CompositionLayer{layer},
	}); err != nil {
		return true, errors.Wrap(err, "end frame")
	}

	e.frameIndex = (e.frameIndex + 1) % e.frames.Depth()
	e.stats.Tick(true)
	return false, nil
}

// requestExit asks the runtime to wind a running session down and drains the
// events it answers with. A stop before the session ever ran ends the loop at
// once; a session the runtime is already stopping is left to finish.
func (e *Engine) requestExit() (done bool, err error) {
	log := Logger()
	if e.driver.State() != SessionRunning {
		if e.driver.Ended() {
			e.exitRequested = true
			log.Info("stop requested while the session is ending")
			return false, nil
		}
		log.Info("stop requested before the session is running")
		return true, nil
	}
	if err := e.driver.RequestExit(); err != nil {
		// The runtime may have started stopping after the last poll.
		if _, perr := e.driver.Poll(); perr != nil {
			return true, errors.Wrap(perr, "poll events")
		}
		if e.driver.State() == SessionRunning {
			return true, errors.Wrap(err, "request exit")
		}
		log.Info("runtime already stopping the session", "refusal", err)
	} else {
		log.Info("exit requested from the runtime")
	}
	e.exitRequested = true
	if _, err := e.driver.Poll(); err != nil {
		return true, errors.Wrap(err, "poll events")
	}
	return false, nil
}

func (e *Engine) render(fs FrameState) error {
	log := Logger()

	waitStart := e.stats.Mark()
	slot, err := e.frames.Acquire(e.frameIndex)
	e.stats.AddFenceWait(waitStart)
	if err != nil {
		return err
	}

	if e.surface == nil {
		if e.surface, err = BuildPresentationSurface(e.gfx.Device(), e.session, e.views, e.layout); err != nil {
			return err
		}
	}
	idx, err := e.acquireImage()
	if err != nil {
		return err
	}
	if err := e.surface.WaitReady(Infinite); err != nil {
		return err
	}
	log.Debug("frame", "index", e.frameIndex, "slot", slot, "image", idx)

	info := FrameInfo{
		FrameIndex:  e.frameIndex,
		Slot:        slot,
		ImageIndex:  idx,
		DisplayTime: fs.PredictedDisplayTime,
		Extent:      e.surface.Extent(),
		Views:       e.lastViews,
		Eyes:        EyeMatricesFor(e.lastViews, e.cfg.Render.Near, e.cfg.Render.Far),
		Hands:       e.input.Hands(),
	}
	recordStart := e.stats.Mark()
	err = e.frames.Record(slot, func(cmd CommandStream) error {
		rect := e.surface.Rect()
		cmd.BeginRenderPass(RenderPassBegin{
			RenderPass:  e.layout.Handle(),
			Framebuffer: e.surface.Framebuffer(idx),
			Area:        rect,
			ClearColor:  Color(e.cfg.Render.ClearColor),
			ClearDepth:  1.0,
			HasDepth:    e.layout.HasDepth(),
		})
		cmd.SetViewport(FullViewport(rect.Extent))
		cmd.SetScissor(rect)
		cmd.BindPipeline(e.pipeline.Handle())
		cmd.Draw(e.renderer.Draw(info))
		cmd.EndRenderPass()
		return nil
	})
	e.stats.AddRecord(recordStart)
	if err != nil {
		return err
	}

	if !e.driver.CanSubmit() {
		return ErrSubmitNotPermitted
	}
	if err := e.frames.Submit(slot); err != nil {
		return err
	}
	return e.surface.Release()
}

// acquireImage rebuilds an out of date surface once and retries. A second
// failure is returned.
func (e *Engine) acquireImage() (uint32, error) {
	idx, err := e.surface.Acquire()
	if err == nil || !IsSurfaceOutOfDate(err) {
		return idx, err
	}
	Logger().Warn("presentation surface out of date, rebuilding")
	if err := e.rebuildSurface(); err != nil {
		return 0, errors.Wrap(err, "rebuild surface")
	}
	idx, err = e.surface.Acquire()
	if err != nil {
		return 0, errors.Wrap(err, "acquire after rebuild")
	}
	return idx, nil
}

func (e *Engine) rebuildSurface() error {
	if err := e.gfx.WaitIdle(); err != nil {
		return err
	}
	e.destroySurface()
	views, err := e.runtime.ViewConfigurationViews()
	if err != nil {
		return errors.Wrap(err, "view configuration")
	}
	e.views = views
	e.surface, err = BuildPresentationSurface(e.gfx.Device(), e.session, e.views, e.layout)
	return err
}

func (e *Engine) destroySurface() {
	if e.surface != nil {
		e.surface.Destroy()
		e.surface = nil
	}
}

// compose syncs input, locates both eyes and builds the projection layer.
func (e *Engine) compose(fs FrameState) (*ProjectionLayer, error) {
	if err := e.input.Sync(fs.PredictedDisplayTime); err != nil {
		return nil, err
	}
	views, err := e.session.LocateViews(e.stage, fs.PredictedDisplayTime)
	if err != nil {
		return nil, errors.Wrap(err, "locate views")
	}
	if len(views) < ViewCount {
		return nil, errors.Wrapf(ErrViewConfiguration, "located %d views", len(views))
	}
	e.lastViews = views

	layer := &ProjectionLayer{
		Space: e.stage,
		Views: make([]ProjectionView, ViewCount),
	}
	for eye := 0; eye < ViewCount; eye++ {
		layer.Views[eye] = ProjectionView{
			Pose:     views[eye].Pose,
			Fov:      views[eye].Fov,
			SubImage: e.surface.SubImage(uint32(eye)),
		}
	}
	return layer, nil
}

// Teardown idles the device and destroys everything in reverse construction order.
func (e *Engine) Teardown() error {
	return e.lifetime.Teardown()
}

// State is the current session state.
func (e *Engine) State() SessionState {
	return e.driver.State()
}

// Stats returns the running frame timing counters.
func (e *Engine) Stats() *FrameStats {
	return e.stats
}

// FrameIndex is the frame slot the next rendered frame records into.
func (e *Engine) FrameIndex() int {
	return e.frameIndex
}

// BlendMode is the environment blend mode chosen at startup.
func (e *Engine) BlendMode() BlendMode {
	return e.blend
}

// Surface is nil until the first frame that renders.
func (e *Engine) Surface() *PresentationSurface {
	return e.surface
}
