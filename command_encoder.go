package gpucmd

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucmd/gpucore"
)

// EncoderState is the recording state of a CommandEncoder.
type EncoderState uint8

// Encoder states.
//
//	Initial   -> Start     -> Started
//	Started   -> Transfer  -> PassOpen   (also Compute)
//	PassOpen  -> End       -> Started    (or opening the next pass)
//	Started   -> Submit    -> Submitted
//	Submitted -> Start     -> Started
//	Started   -> Start     -> Started    (discards the recording)
//	any       -> Destroy   -> Destroyed  (when no submission is in flight)
const (
	EncoderInitial EncoderState = iota
	EncoderStarted
	EncoderPassOpen
	EncoderSubmitted
	EncoderDestroyed
)

// String returns the state name.
func (s EncoderState) String() string {
	switch s {
	case EncoderInitial:
		return "Initial"
	case EncoderStarted:
		return "Started"
	case EncoderPassOpen:
		return "PassOpen"
	case EncoderSubmitted:
		return "Submitted"
	case EncoderDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("EncoderState(%d)", int(s))
	}
}

// CommandEncoderDesc describes a command encoder. BufferCount is the number
// of recording slots Start rotates through; zero means one.
type CommandEncoderDesc struct {
	Name        string
	BufferCount uint32
}

// CommandEncoder records passes into a command stream.
//
// An encoder is owned by one goroutine while recording. The mutex only makes
// misuse detectable; different encoders may be recorded and submitted
// concurrently.
type CommandEncoder struct {
	mu    sync.Mutex
	ctx   *Context
	name  string
	state EncoderState

	// slots holds the last submission of each recording slot.
	slots []SyncPoint
	slot  int

	passes []gpucore.Pass
	open   *pass

	// refs holds every handle the recording uses; Submit revalidates them.
	refs resourceRefs
	// inits lists textures first marked initialized by this recording.
	inits []Texture
}

// resourceRefs lists the handles referenced by recorded commands.
type resourceRefs struct {
	buffers   []Buffer
	textures  []Texture
	views     []TextureView
	pipelines []*ComputePipeline
}

func (r *resourceRefs) merge(o resourceRefs) {
	r.buffers = append(r.buffers, o.buffers...)
	r.textures = append(r.textures, o.textures...)
	r.views = append(r.views, o.views...)
	r.pipelines = append(r.pipelines, o.pipelines...)
}

// CreateCommandEncoder creates an encoder in the Initial state.
func (c *Context) CreateCommandEncoder(desc CommandEncoderDesc) *CommandEncoder {
	n := max(desc.BufferCount, 1)
	return &CommandEncoder{
		ctx:   c,
		name:  desc.Name,
		slots: make([]SyncPoint, n),
		slot:  -1,
	}
}

// Name returns the encoder's name.
func (e *CommandEncoder) Name() string { return e.name }

// State returns the current state.
func (e *CommandEncoder) State() EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins a new recording in the next recording slot. It fails with
// ErrInFlight if the slot's previous submission has not resolved yet.
//
// Start on a Started encoder discards the unsubmitted recording and restarts
// it in the same slot. Textures whose InitTexture was only recorded there
// are uninitialized again.
func (e *CommandEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case EncoderDestroyed:
		return fmt.Errorf("start %q: %w", e.name, ErrEncoderDestroyed)
	case EncoderPassOpen:
		return fmt.Errorf("start %q: %w", e.name, ErrPassOpen)
	case EncoderStarted:
		Logger().Debug("gpucmd: recording discarded", "encoder", e.name, "passes", len(e.passes))
		e.discardLocked()
		return nil
	}

	next := (e.slot + 1) % len(e.slots)
	if sp := e.slots[next]; !e.ctx.resolved(sp) {
		return fmt.Errorf("start %q: slot %d waits on %v: %w", e.name, next, sp, ErrInFlight)
	}
	e.slot = next
	e.resetLocked()
	e.state = EncoderStarted
	return nil
}

// resetLocked forgets the recording after it was submitted.
func (e *CommandEncoder) resetLocked() {
	e.passes = nil
	e.refs = resourceRefs{}
	e.inits = nil
}

// discardLocked forgets an unsubmitted recording and undoes its
// InitTexture marks.
func (e *CommandEncoder) discardLocked() {
	e.ctx.unmarkInitialized(e.inits)
	e.resetLocked()
}

// Transfer opens a transfer pass, ending the open pass if there is one.
func (e *CommandEncoder) Transfer() (*TransferPass, error) {
	p, err := e.beginPass(gpucore.PassTransfer)
	if err != nil {
		return nil, err
	}
	return &TransferPass{pass: p}, nil
}

// Compute opens a compute pass, ending the open pass if there is one.
func (e *CommandEncoder) Compute() (*ComputePass, error) {
	p, err := e.beginPass(gpucore.PassCompute)
	if err != nil {
		return nil, err
	}
	return &ComputePass{pass: p}, nil
}

// WithTransfer runs fn in a transfer pass. The pass is ended when fn
// returns or panics.
func (e *CommandEncoder) WithTransfer(fn func(*TransferPass) error) error {
	p, err := e.Transfer()
	if err != nil {
		return err
	}
	defer p.End()
	return fn(p)
}

// WithCompute runs fn in a compute pass. The pass is ended when fn
// returns or panics.
func (e *CommandEncoder) WithCompute(fn func(*ComputePass) error) error {
	p, err := e.Compute()
	if err != nil {
		return err
	}
	defer p.End()
	return fn(p)
}

func (e *CommandEncoder) checkRecordingLocked() error {
	switch e.state {
	case EncoderStarted, EncoderPassOpen:
		return nil
	case EncoderDestroyed:
		return ErrEncoderDestroyed
	default:
		return ErrEncoderNotStarted
	}
}

func (e *CommandEncoder) beginPass(kind gpucore.PassKind) (*pass, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRecordingLocked(); err != nil {
		return nil, fmt.Errorf("begin %s pass on %q: %w", kind, e.name, err)
	}
	if e.open != nil {
		e.open.endLocked()
	}
	e.passes = append(e.passes, gpucore.Pass{
		Kind:  kind,
		Label: fmt.Sprintf("%s/%s-%d", e.name, kind, len(e.passes)),
	})
	p := &pass{enc: e, index: len(e.passes) - 1}
	e.open = p
	e.state = EncoderPassOpen
	return p, nil
}

// pass is the state shared by transfer and compute passes.
type pass struct {
	enc   *CommandEncoder
	index int
	ended bool
}

// End closes the pass. End is idempotent.
func (p *pass) End() {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	p.endLocked()
}

// Ended reports whether the pass has been closed.
func (p *pass) Ended() bool {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	return p.ended
}

func (p *pass) endLocked() {
	if p.ended {
		return
	}
	p.ended = true
	e := p.enc
	if e.open == p {
		e.open = nil
		if e.state == EncoderPassOpen {
			e.state = EncoderStarted
		}
	}
	rec := &e.passes[p.index]
	Logger().Debug("gpucmd: pass ended", "encoder", e.name, "pass", rec.Label, "commands", len(rec.Commands))
}

// checkLocked returns ErrPassEnded once the pass is closed.
func (p *pass) checkLocked() error {
	if p.ended {
		return ErrPassEnded
	}
	return nil
}

func (p *pass) recordLocked(cmd gpucore.Command) {
	rec := &p.enc.passes[p.index]
	rec.Commands = append(rec.Commands, cmd)
}

// DestroyCommandEncoder releases enc. It fails with ErrInFlight while any
// submission of enc is unresolved.
func (c *Context) DestroyCommandEncoder(enc *CommandEncoder) error {
	enc.mu.Lock()
	defer enc.mu.Unlock()

	if enc.state == EncoderDestroyed {
		return fmt.Errorf("destroy command encoder %q: %w", enc.name, ErrEncoderDestroyed)
	}
	for _, sp := range enc.slots {
		if !c.resolved(sp) {
			return fmt.Errorf("destroy command encoder %q: %v: %w", enc.name, sp, ErrInFlight)
		}
	}
	if enc.open != nil {
		enc.open.endLocked()
	}
	if enc.state == EncoderStarted || enc.state == EncoderPassOpen {
		enc.discardLocked()
	}
	enc.state = EncoderDestroyed
	enc.resetLocked()
	return nil
}
