package dieselxr

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// callLog is shared by the fake device and runtime so ordering across both can
// be asserted.
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// index of the n-th (0 based) call with prefix, -1 when missing.
func (l *callLog) index(prefix string, n int) int {
	for i, c := range l.calls {
		if strings.HasPrefix(c, prefix) {
			if n == 0 {
				return i
			}
			n--
		}
	}
	return -1
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (l *callLog) with(prefix string) []string {
	var out []string
	for _, c := range l.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type fakeHandle struct {
	kind string
	id   int
}

func (h *fakeHandle) String() string {
	return fmt.Sprintf("%s#%d", h.kind, h.id)
}

type fakeFence struct {
	fakeHandle
	signaled bool
	pending  bool
}

type fakeStream struct {
	dev *fakeDevice
	cmd *fakeHandle
}

func (s *fakeStream) BeginRenderPass(b RenderPassBegin) {
	s.dev.log.add("cmd:%s:begin_pass:%v", s.cmd, b.Framebuffer)
}
func (s *fakeStream) SetViewport(vp Viewport) {
	s.dev.log.add("cmd:%s:viewport:%vx%v", s.cmd, vp.Width, vp.Height)
}
func (s *fakeStream) SetScissor(r Rect2D) {
	s.dev.log.add("cmd:%s:scissor:%dx%d", s.cmd, r.Extent.Width, r.Extent.Height)
}
func (s *fakeStream) BindPipeline(p Pipeline) { s.dev.log.add("cmd:%s:bind:%v", s.cmd, p) }
func (s *fakeStream) Draw(d DrawParams) {
	s.dev.log.add("cmd:%s:draw:%d:%d", s.cmd, d.VertexCount, d.InstanceCount)
}
func (s *fakeStream) EndRenderPass() { s.dev.log.add("cmd:%s:end_pass", s.cmd) }

type fakeDevice struct {
	log    *callLog
	nextID int

	unsupported map[Format]bool
	failOn      map[string]error
	idleErr     error

	live        map[*fakeHandle]bool
	fences      []*fakeFence
	pending     int
	maxInFlight int
	submits     int
	// destroys issued while GPU work was outstanding
	violations []string

	views        []ImageViewDesc
	framebuffers []FramebufferDesc
	renderPass   RenderPassDesc
}

func newFakeDevice(log *callLog) *fakeDevice {
	return &fakeDevice{
		log:         log,
		unsupported: map[Format]bool{},
		failOn:      map[string]error{},
		live:        map[*fakeHandle]bool{},
	}
}

func (d *fakeDevice) handle(kind string) *fakeHandle {
	d.nextID++
	h := &fakeHandle{kind: kind, id: d.nextID}
	d.live[h] = true
	d.log.add("create:%s", h)
	return h
}

func (d *fakeDevice) fail(op string) error {
	if err, ok := d.failOn[op]; ok {
		return err
	}
	return nil
}

func (d *fakeDevice) destroy(h any) {
	fh, ok := h.(*fakeHandle)
	if f, isFence := h.(*fakeFence); !ok && isFence {
		fh = &f.fakeHandle
	}
	if d.pending > 0 {
		d.violations = append(d.violations, fmt.Sprint(h))
	}
	delete(d.live, fh)
	d.log.add("destroy:%v", fh)
}

func (d *fakeDevice) Handle() any         { return "device" }
func (d *fakeDevice) QueueFamily() uint32 { return 0 }
func (d *fakeDevice) QueueIndex() uint32  { return 0 }

func (d *fakeDevice) FormatSupported(f Format, _ ImageUsage) bool { return !d.unsupported[f] }

func (d *fakeDevice) CreateRenderPass(desc RenderPassDesc) (RenderPass, error) {
	if err := d.fail("render_pass"); err != nil {
		return nil, err
	}
	d.renderPass = desc
	return d.handle("render_pass"), nil
}

func (d *fakeDevice) CreatePipeline(_ RenderPass, _ PipelineDesc) (Pipeline, PipelineLayout, error) {
	if err := d.fail("pipeline"); err != nil {
		return nil, nil, err
	}
	layout := d.handle("pipeline_layout")
	return d.handle("pipeline"), layout, nil
}

func (d *fakeDevice) CreateCommandPool() (CommandPool, error) {
	return d.handle("command_pool"), nil
}

func (d *fakeDevice) AllocateCommandBuffers(_ CommandPool, count int) ([]CommandBuffer, error) {
	out := make([]CommandBuffer, count)
	for i := range out {
		out[i] = d.handle("cmd")
	}
	return out, nil
}

func (d *fakeDevice) CreateFence(signaled bool) (Fence, error) {
	if err := d.fail("fence"); err != nil {
		return nil, err
	}
	d.nextID++
	f := &fakeFence{fakeHandle: fakeHandle{kind: "fence", id: d.nextID}, signaled: signaled}
	d.live[&f.fakeHandle] = true
	d.fences = append(d.fences, f)
	d.log.add("create:%s", &f.fakeHandle)
	return f, nil
}

func (d *fakeDevice) CreateImage(desc ImageDesc) (Image, error) {
	if err := d.fail("image"); err != nil {
		return nil, err
	}
	return d.handle("image"), nil
}

func (d *fakeDevice) CreateImageView(_ Image, desc ImageViewDesc) (ImageView, error) {
	if err := d.fail("image_view"); err != nil {
		return nil, err
	}
	d.views = append(d.views, desc)
	return d.handle("image_view"), nil
}

func (d *fakeDevice) CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error) {
	if err := d.fail("framebuffer"); err != nil {
		return nil, err
	}
	d.framebuffers = append(d.framebuffers, desc)
	return d.handle("framebuffer"), nil
}

// WaitForFence completes the fence's outstanding work, as a GPU eventually would.
// Waiting on a reset fence with nothing submitted would hang a real device.
func (d *fakeDevice) WaitForFence(f Fence, _ time.Duration) error {
	fence := f.(*fakeFence)
	d.log.add("wait:%s", &fence.fakeHandle)
	if fence.pending {
		fence.pending = false
		fence.signaled = true
		d.pending--
	}
	if !fence.signaled {
		return errors.Errorf("deadlock: waiting on unsignaled %s with no work", &fence.fakeHandle)
	}
	return nil
}

func (d *fakeDevice) ResetFence(f Fence) error {
	fence := f.(*fakeFence)
	d.log.add("reset:%s", &fence.fakeHandle)
	fence.signaled = false
	return nil
}

func (d *fakeDevice) BeginCommandBuffer(cmd CommandBuffer) (CommandStream, error) {
	d.log.add("begin_cmd:%s", cmd)
	return &fakeStream{dev: d, cmd: cmd.(*fakeHandle)}, nil
}

func (d *fakeDevice) EndCommandBuffer(cmd CommandBuffer) error {
	d.log.add("end_cmd:%s", cmd)
	return nil
}

func (d *fakeDevice) Submit(cmd CommandBuffer, f Fence) error {
	if err := d.fail("submit"); err != nil {
		return err
	}
	fence := f.(*fakeFence)
	if fence.signaled || fence.pending {
		return errors.Errorf("submit with %s not reset", &fence.fakeHandle)
	}
	fence.pending = true
	d.pending++
	d.submits++
	if d.pending > d.maxInFlight {
		d.maxInFlight = d.pending
	}
	d.log.add("submit:%s:%s", cmd, &fence.fakeHandle)
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.log.add("wait_idle")
	if d.idleErr != nil {
		return d.idleErr
	}
	for _, f := range d.fences {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	}
	d.pending = 0
	return nil
}

func (d *fakeDevice) DestroyFramebuffer(fb Framebuffer)      { d.destroy(fb) }
func (d *fakeDevice) DestroyImageView(v ImageView)           { d.destroy(v) }
func (d *fakeDevice) DestroyImage(img Image)                 { d.destroy(img) }
func (d *fakeDevice) DestroyFence(f Fence)                   { d.destroy(f) }
func (d *fakeDevice) DestroyCommandPool(pool CommandPool)    { d.destroy(pool) }
func (d *fakeDevice) DestroyPipeline(p Pipeline)             { d.destroy(p) }
func (d *fakeDevice) DestroyPipelineLayout(l PipelineLayout) { d.destroy(l) }
func (d *fakeDevice) DestroyRenderPass(rp RenderPass)        { d.destroy(rp) }

func (d *fakeDevice) FreeCommandBuffers(_ CommandPool, cmds []CommandBuffer) {
	for _, c := range cmds {
		d.destroy(c)
	}
}

func (d *fakeDevice) Destroy() {
	if d.pending > 0 {
		d.violations = append(d.violations, "device")
	}
	d.log.add("destroy:device")
}

type fakeBackend struct {
	version   Version
	families  []QueueFamily
	exts      []string
	multiview bool
	device    *fakeDevice
	desc      DeviceDesc
	created   bool
}

func newFakeBackend(dev *fakeDevice) *fakeBackend {
	return &fakeBackend{
		version: MakeVersion(1, 1, 0),
		families: []QueueFamily{
			{Index: 0, Flags: QueueTransfer, Count: 1},
			{Index: 1, Flags: QueueGraphics | QueueCompute, Count: 4},
		},
		exts:      []string{"VK_KHR_swapchain", "VK_KHR_external_memory"},
		multiview: true,
		device:    dev,
	}
}

func (b *fakeBackend) APIVersion() Version                   { return b.version }
func (b *fakeBackend) QueueFamilies() ([]QueueFamily, error) { return b.families, nil }
func (b *fakeBackend) DeviceExtensions() ([]string, error)   { return b.exts, nil }
func (b *fakeBackend) SupportsMultiview() bool               { return b.multiview }
func (b *fakeBackend) Handles() GraphicsHandles {
	return GraphicsHandles{Instance: "instance", PhysicalDevice: "gpu"}
}

func (b *fakeBackend) CreateDevice(desc DeviceDesc) (Device, error) {
	b.desc = desc
	b.created = true
	b.device.log.add("create:device")
	return b.device, nil
}

type fakeSwapchain struct {
	log         *callLog
	id          int
	images      []Image
	next        uint32
	acquired    bool
	acquireErrs []error
	waits       int
	releases    int
}

func (s *fakeSwapchain) Images() ([]Image, error) { return s.images, nil }

func (s *fakeSwapchain) Acquire() (uint32, error) {
	if len(s.acquireErrs) > 0 {
		err := s.acquireErrs[0]
		s.acquireErrs = s.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	s.acquired = true
	s.log.add("swapchain%d:acquire:%d", s.id, idx)
	return idx, nil
}

func (s *fakeSwapchain) Wait(time.Duration) error {
	s.waits++
	return nil
}

func (s *fakeSwapchain) Release() error {
	s.acquired = false
	s.releases++
	s.log.add("swapchain%d:release", s.id)
	return nil
}

func (s *fakeSwapchain) Destroy() { s.log.add("destroy:swapchain%d", s.id) }

type fakeSpace struct {
	log  *callLog
	kind ReferenceSpaceType
}

func (s *fakeSpace) Type() ReferenceSpaceType { return s.kind }
func (s *fakeSpace) Destroy()                 { s.log.add("destroy:space") }

type fakeActionSet struct {
	log  *callLog
	desc ActionSetDesc
}

func (a *fakeActionSet) LocatePose(action string, _ Space, _ Time) (Pose, bool, error) {
	p := IdentityPose
	if action == LeftHandAction {
		p.Position = [3]float32{-0.2, 1.2, -0.3}
	} else {
		p.Position = [3]float32{0.2, 1.2, -0.3}
	}
	return p, true, nil
}

func (a *fakeActionSet) Destroy() { a.log.add("destroy:action_set") }

type fakeSession struct {
	log *callLog
	rt  *fakeRuntime

	begins, ends, exits int
	waits, beginFrames  int
	syncs               int
	ended               []FrameEnd

	// shouldRender is consulted with the WaitFrame count (1 based); nil renders
	// whenever the session is running.
	shouldRender func(n int) bool
	running      bool

	swapchains    []*fakeSwapchain
	swapchainDesc SwapchainDesc
	imageCount    int
	// acquireErrs is handed to the next swapchain created.
	acquireErrs []error
	// staleSwapchains is how many swapchains, in creation order, fail their first
	// acquire as out of date.
	staleSwapchains int
	actionSet       *fakeActionSet
	// exitRefusal makes RequestExit fail after queuing the stop sequence, as a
	// runtime that started stopping on its own does.
	exitRefusal error
	// exitIgnored queues nothing on RequestExit.
	exitIgnored bool
}

func (s *fakeSession) Begin() error {
	s.begins++
	s.running = true
	s.log.add("session:begin")
	return nil
}

func (s *fakeSession) End() error {
	s.ends++
	s.running = false
	s.log.add("session:end")
	return nil
}

// RequestExit answers with Stopping and, once ended, Exiting.
func (s *fakeSession) RequestExit() error {
	s.exits++
	s.log.add("session:request_exit")
	if s.exitIgnored {
		return s.exitRefusal
	}
	s.rt.push(SessionStateChanged{State: RuntimeStopping})
	s.rt.push(SessionStateChanged{State: RuntimeIdle})
	s.rt.push(SessionStateChanged{State: RuntimeExiting})
	return s.exitRefusal
}

func (s *fakeSession) WaitFrame() (FrameState, error) {
	s.waits++
	render := s.running
	if s.shouldRender != nil {
		render = render && s.shouldRender(s.waits)
	}
	return FrameState{
		PredictedDisplayTime:   Time(s.waits) * Time(11*time.Millisecond),
		PredictedDisplayPeriod: 11 * time.Millisecond,
		ShouldRender:           render,
	}, nil
}

func (s *fakeSession) BeginFrame() error {
	s.beginFrames++
	return nil
}

func (s *fakeSession) EndFrame(end FrameEnd) error {
	s.ended = append(s.ended, end)
	s.log.add("session:end_frame:%d", len(end.Layers))
	return nil
}

func (s *fakeSession) CreateSwapchain(desc SwapchainDesc) (Swapchain, error) {
	s.swapchainDesc = desc
	sc := &fakeSwapchain{log: s.log, id: len(s.swapchains)}
	for i := 0; i < s.imageCount; i++ {
		sc.images = append(sc.images, &fakeHandle{kind: "swapchain_image", id: 1000*(sc.id+1) + i})
	}
	sc.acquireErrs = s.acquireErrs
	s.acquireErrs = nil
	if s.staleSwapchains > 0 {
		sc.acquireErrs = append(sc.acquireErrs, ErrSurfaceOutOfDate)
		s.staleSwapchains--
	}
	s.swapchains = append(s.swapchains, sc)
	s.log.add("create:swapchain%d", sc.id)
	return sc, nil
}

func (s *fakeSession) CreateReferenceSpace(kind ReferenceSpaceType, _ Pose) (Space, error) {
	s.log.add("create:space")
	return &fakeSpace{log: s.log, kind: kind}, nil
}

func (s *fakeSession) AttachActionSet(desc ActionSetDesc) (ActionSet, error) {
	s.actionSet = &fakeActionSet{log: s.log, desc: desc}
	s.log.add("create:action_set")
	return s.actionSet, nil
}

func (s *fakeSession) SyncActions(ActionSet) error {
	s.syncs++
	return nil
}

func (s *fakeSession) LocateViews(_ Space, _ Time) ([]View, error) {
	fov := Fov{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.8, AngleDown: -0.8}
	left, right := IdentityPose, IdentityPose
	left.Position[0] = -0.032
	right.Position[0] = 0.032
	return []View{{Pose: left, Fov: fov}, {Pose: right, Fov: fov}}, nil
}

func (s *fakeSession) Destroy() { s.log.add("destroy:session") }

type fakeRuntime struct {
	log     *callLog
	reqs    GraphicsRequirements
	views   []ViewConfigView
	blend   []BlendMode
	devExts []string
	gpu     any
	events  []Event
	session *fakeSession
	binding SessionBinding
}

func newFakeRuntime(log *callLog) *fakeRuntime {
	rt := &fakeRuntime{
		log: log,
		reqs: GraphicsRequirements{
			MinAPIVersion: MakeVersion(1, 0, 0),
			MaxAPIVersion: MakeVersion(1, 3, 0),
		},
		views: []ViewConfigView{
			{RecommendedWidth: 64, RecommendedHeight: 48, MaxWidth: 128, MaxHeight: 96, RecommendedSamples: 1},
			{RecommendedWidth: 64, RecommendedHeight: 48, MaxWidth: 128, MaxHeight: 96, RecommendedSamples: 1},
		},
		blend: []BlendMode{BlendOpaque, BlendAdditive},
	}
	rt.session = &fakeSession{log: log, rt: rt, imageCount: 3}
	return rt
}

func (r *fakeRuntime) push(ev Event) { r.events = append(r.events, ev) }

func (r *fakeRuntime) GraphicsRequirements() (GraphicsRequirements, error) { return r.reqs, nil }
func (r *fakeRuntime) RequiredInstanceExtensions() ([]string, error)       { return nil, nil }
func (r *fakeRuntime) RequiredDeviceExtensions() ([]string, error)         { return r.devExts, nil }
func (r *fakeRuntime) GraphicsDevice(any) (any, error)                     { return r.gpu, nil }
func (r *fakeRuntime) ViewConfigurationViews() ([]ViewConfigView, error)   { return r.views, nil }
func (r *fakeRuntime) EnvironmentBlendModes() ([]BlendMode, error)         { return r.blend, nil }

func (r *fakeRuntime) CreateSession(b SessionBinding) (Session, error) {
	r.binding = b
	r.log.add("create:session")
	return r.session, nil
}

func (r *fakeRuntime) PollEvent() (Event, bool, error) {
	if len(r.events) == 0 {
		return nil, false, nil
	}
	ev := r.events[0]
	r.events = r.events[1:]
	return ev, true, nil
}

func (r *fakeRuntime) Destroy() { r.log.add("destroy:runtime") }

type fakeRenderer struct {
	desc  PipelineDesc
	infos []FrameInfo
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{desc: PipelineDesc{
		Stages: []ShaderModule{
			{Stage: ShaderVertex, Code: []byte{0x03, 0x02, 0x23, 0x07}, Entry: "main"},
			{Stage: ShaderFragment, Code: []byte{0x03, 0x02, 0x23, 0x07}, Entry: "main"},
		},
		Topology: TopologyTriangleList,
	}}
}

func (r *fakeRenderer) PipelineDesc() (PipelineDesc, error) { return r.desc, nil }

func (r *fakeRenderer) Draw(info FrameInfo) DrawParams {
	r.infos = append(r.infos, info)
	return DrawParams{VertexCount: 3, InstanceCount: 1}
}
