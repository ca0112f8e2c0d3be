package dieselxr

import (
	"github.com/pkg/errors"
)

// SlotState is the lifecycle of one frame slot.
type SlotState int

const (
	// SlotIdle: the fence is signaled, no GPU work references the command buffer.
	SlotIdle SlotState = iota
	// SlotReady: the fence has been reset for this frame, recording may start.
	SlotReady
	SlotRecording
	SlotRecorded
	// SlotSubmitted: the command buffer is queued, the fence signals on completion.
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotReady:
		return "ready"
	case SlotRecording:
		return "recording"
	case SlotRecorded:
		return "recorded"
	case SlotSubmitted:
		return "submitted"
	}
	return "invalid"
}

type frameSlot struct {
	cmd   CommandBuffer
	fence Fence
	state SlotState
}

// FrameResources is the ring of command buffers and fences, one pair per slot.
// A slot's command buffer is re-recorded only after its fence signaled.
type FrameResources struct {
	device Device
	pool   CommandPool
	cmds   []CommandBuffer
	slots  []frameSlot
}

// NewFrameResources allocates depth command buffers and depth fences. Fences are
// created signaled so the first Acquire of every slot does not block.
func NewFrameResources(dev Device, depth int) (*FrameResources, error) {
	if depth < 1 {
		return nil, errors.Errorf("pipelining depth %d, must be at least 1", depth)
	}
	f := &FrameResources{device: dev}
	if err := f.init(depth); err != nil {
		f.Destroy()
		return nil, err
	}
	Logger().Info("frame resources created", "depth", depth)
	return f, nil
}

func (f *FrameResources) init(depth int) (err error) {
	if f.pool, err = f.device.CreateCommandPool(); err != nil {
		return errors.Wrap(err, "create command pool")
	}
	if f.cmds, err = f.device.AllocateCommandBuffers(f.pool, depth); err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	f.slots = make([]frameSlot, 0, depth)
	for i := 0; i < depth; i++ {
		fence, err := f.device.CreateFence(true)
		if err != nil {
			return errors.Wrapf(err, "create fence %d", i)
		}
		f.slots = append(f.slots, frameSlot{cmd: f.cmds[i], fence: fence})
	}
	return nil
}

func (f *FrameResources) Depth() int {
	return len(f.slots)
}

func (f *FrameResources) State(slot int) SlotState {
	return f.slots[slot].state
}

// InFlight counts slots whose submitted work has not been waited for.
func (f *FrameResources) InFlight() int {
	n := 0
	for _, s := range f.slots {
		if s.state == SlotSubmitted {
			n++
		}
	}
	return n
}

// Acquire selects the slot for frameIndex and blocks until the GPU finished the
// slot's previous submission, then resets its fence.
func (f *FrameResources) Acquire(frameIndex int) (int, error) {
	if f.slots == nil {
		return 0, ErrTornDown
	}
	slot := frameIndex % len(f.slots)
	s := &f.slots[slot]
	switch s.state {
	case SlotRecording:
		return slot, errors.Wrapf(ErrSlotBusy, "slot %d", slot)
	case SlotReady, SlotRecorded:
		// Fence already reset and nothing submitted since, waiting would never return.
		s.state = SlotReady
		return slot, nil
	}
	if err := f.device.WaitForFence(s.fence, Infinite); err != nil {
		return slot, errors.Wrapf(err, "wait fence slot %d", slot)
	}
	if err := f.device.ResetFence(s.fence); err != nil {
		s.state = SlotIdle
		return slot, errors.Wrapf(err, "reset fence slot %d", slot)
	}
	s.state = SlotReady
	return slot, nil
}

// Record opens the slot's command buffer and hands fn a stream accepting exactly
// one render pass: begin, viewport, scissor and pipeline in any order, one draw,
// end. Anything else fails with ErrCommandSequence.
func (f *FrameResources) Record(slot int, fn func(CommandStream) error) error {
	if f.slots == nil {
		return ErrTornDown
	}
	s := &f.slots[slot]
	if s.state != SlotReady && s.state != SlotRecorded {
		return errors.Wrapf(ErrSlotBusy, "slot %d is %s", slot, s.state)
	}
	stream, err := f.device.BeginCommandBuffer(s.cmd)
	if err != nil {
		return errors.Wrapf(err, "begin command buffer slot %d", slot)
	}
	s.state = SlotRecording
	rec := &passRecorder{stream: stream}
	fnErr := fn(rec)
	if fnErr == nil {
		fnErr = rec.finish()
	}
	if err := f.device.EndCommandBuffer(s.cmd); err != nil && fnErr == nil {
		fnErr = errors.Wrapf(err, "end command buffer slot %d", slot)
	}
	if fnErr != nil {
		s.state = SlotReady
		return fnErr
	}
	s.state = SlotRecorded
	return nil
}

// Submit queues the slot's recorded command buffer with its fence as the
// completion signal.
func (f *FrameResources) Submit(slot int) error {
	if f.slots == nil {
		return ErrTornDown
	}
	s := &f.slots[slot]
	if s.state != SlotRecorded {
		return errors.Wrapf(ErrSlotNotRecorded, "slot %d is %s", slot, s.state)
	}
	if err := f.device.Submit(s.cmd, s.fence); err != nil {
		return errors.Wrapf(err, "submit slot %d", slot)
	}
	s.state = SlotSubmitted
	return nil
}

// Destroy frees fences, command buffers and the pool. The device must be idle.
func (f *FrameResources) Destroy() {
	for _, s := range f.slots {
		f.device.DestroyFence(s.fence)
	}
	f.slots = nil
	if len(f.cmds) > 0 {
		f.device.FreeCommandBuffers(f.pool, f.cmds)
		f.cmds = nil
	}
	if f.pool != nil {
		f.device.DestroyCommandPool(f.pool)
		f.pool = nil
	}
}

type recordPhase int

const (
	phaseStart recordPhase = iota
	phaseInPass
	phaseDrawn
	phaseEnded
)

// passRecorder forwards commands to the backend stream while checking they
// form one complete render pass.
type passRecorder struct {
	stream   CommandStream
	phase    recordPhase
	viewport bool
	scissor  bool
	pipeline bool
	err      error
}

func (r *passRecorder) fail(format string, args ...any) {
	if r.err == nil {
		r.err = errors.Wrapf(ErrCommandSequence, format, args...)
	}
}

func (r *passRecorder) BeginRenderPass(begin RenderPassBegin) {
	if r.err != nil {
		return
	}
	if r.phase != phaseStart {
		r.fail("render pass begun twice")
		return
	}
	r.phase = phaseInPass
	r.stream.BeginRenderPass(begin)
}

func (r *passRecorder) SetViewport(vp Viewport) {
	if r.err != nil {
		return
	}
	if r.phase != phaseInPass {
		r.fail("viewport outside the render pass")
		return
	}
	r.viewport = true
	r.stream.SetViewport(vp)
}

func (r *passRecorder) SetScissor(rect Rect2D) {
	if r.err != nil {
		return
	}
	if r.phase != phaseInPass {
		r.fail("scissor outside the render pass")
		return
	}
	r.scissor = true
	r.stream.SetScissor(rect)
}

func (r *passRecorder) BindPipeline(p Pipeline) {
	if r.err != nil {
		return
	}
	if r.phase != phaseInPass {
		r.fail("pipeline bound outside the render pass")
		return
	}
	r.pipeline = true
	r.stream.BindPipeline(p)
}

func (r *passRecorder) Draw(params DrawParams) {
	if r.err != nil {
		return
	}
	switch {
	case r.phase != phaseInPass:
		r.fail("draw outside the render pass or after the draw")
		return
	case !r.pipeline:
		r.fail("draw without a bound pipeline")
		return
	case !r.viewport || !r.scissor:
		r.fail("draw without dynamic viewport and scissor")
		return
	}
	r.phase = phaseDrawn
	r.stream.Draw(params)
}

func (r *passRecorder) EndRenderPass() {
	if r.err != nil {
		return
	}
	if r.phase != phaseDrawn {
		r.fail("render pass ended without a draw")
		return
	}
	r.phase = phaseEnded
	r.stream.EndRenderPass()
}

func (r *passRecorder) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.phase != phaseEnded {
		return errors.Wrap(ErrCommandSequence, "render pass not ended")
	}
	return nil
}
