package gpucmd

import (
	"fmt"

	"github.com/gogpu/gpucmd/gpucore"
)

// ComputePass records pipeline dispatches. Resources bound in a compute pass
// are visible to its dispatches, and their writes are visible to the passes
// that follow.
type ComputePass struct {
	*pass
	current *PipelineEncoder
}

// With selects pipeline for the following binds and dispatches. Encoders
// returned by earlier With calls on the same pass stop accepting commands.
func (p *ComputePass) With(pipeline *ComputePipeline) (*PipelineEncoder, error) {
	p.enc.mu.Lock()
	defer p.enc.mu.Unlock()
	if err := p.checkLocked(); err != nil {
		return nil, fmt.Errorf("with pipeline: %w", err)
	}
	if pipeline == nil || pipeline.destroyed.Load() {
		return nil, fmt.Errorf("with pipeline: %w", ErrStaleHandle)
	}
	p.enc.refs.pipelines = append(p.enc.refs.pipelines, pipeline)
	p.recordLocked(gpucore.SetPipeline{Pipeline: pipeline.id})
	pe := &PipelineEncoder{
		pass:     p,
		pipeline: pipeline,
		bound:    make([]bool, len(pipeline.layouts)),
	}
	p.current = pe
	return pe, nil
}

// PipelineEncoder binds data and dispatches one pipeline inside a
// compute pass.
type PipelineEncoder struct {
	pass     *ComputePass
	pipeline *ComputePipeline
	bound    []bool
}

// Pipeline returns the selected pipeline.
func (pe *PipelineEncoder) Pipeline() *ComputePipeline { return pe.pipeline }

func (pe *PipelineEncoder) checkLocked() error {
	if err := pe.pass.checkLocked(); err != nil {
		return err
	}
	if pe.pass.current != pe {
		return fmt.Errorf("pipeline %q replaced by a later With: %w", pe.pipeline.name, ErrPassEnded)
	}
	return nil
}

// Bind binds data as group. data.Layout() must equal the pipeline's layout
// for the group, otherwise Bind fails with ErrLayoutMismatch. Errors raised
// while filling the data, such as ErrIncompleteBinding, are returned here.
func (pe *PipelineEncoder) Bind(group uint32, data ShaderData) error {
	if int(group) >= len(pe.pipeline.layouts) {
		return fmt.Errorf("bind group %d: pipeline %q has %d groups: %w",
			group, pe.pipeline.name, len(pe.pipeline.layouts), ErrLayoutMismatch)
	}
	if data == nil {
		return fmt.Errorf("bind group %d: nil data: %w", group, ErrLayoutMismatch)
	}
	want := pe.pipeline.layouts[group]
	if got := data.Layout(); !got.Equal(want) {
		return fmt.Errorf("bind group %d: data layout %v, pipeline expects %v: %w", group, got, want, ErrLayoutMismatch)
	}

	ctx := pe.pass.enc.ctx
	enc := newShaderDataEncoder(ctx, want, ctx.opts.validation)
	data.Fill(enc)
	values, err := enc.finish()
	if err != nil {
		return fmt.Errorf("bind group %d: %w", group, err)
	}

	pe.pass.enc.mu.Lock()
	defer pe.pass.enc.mu.Unlock()
	if err := pe.checkLocked(); err != nil {
		return fmt.Errorf("bind group %d: %w", group, err)
	}
	pe.pass.enc.refs.merge(enc.refs())
	pe.pass.recordLocked(gpucore.BindGroup{Group: group, Entries: values})
	pe.bound[group] = true
	return nil
}

// Dispatch runs groups workgroups. Every group of the pipeline must have
// been bound since With, otherwise ErrIncompleteBinding.
func (pe *PipelineEncoder) Dispatch(groups [3]uint32) error {
	pe.pass.enc.mu.Lock()
	defer pe.pass.enc.mu.Unlock()
	if err := pe.checkLocked(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return fmt.Errorf("dispatch %v: %w", groups, ErrWorkgroupCountZero)
	}
	for g, ok := range pe.bound {
		if !ok {
			return fmt.Errorf("dispatch %q: group %d not bound: %w", pe.pipeline.name, g, ErrIncompleteBinding)
		}
	}
	pe.pass.recordLocked(gpucore.Dispatch{Groups: groups})
	Logger().Debug("gpucmd: dispatch", "encoder", pe.pass.enc.name, "pipeline", pe.pipeline.name, "groups", groups)
	return nil
}
