// Package gpucmd provides a minimal, explicit GPU command-submission harness.
//
// # Overview
//
// A program declares the bindings its shader sees, allocates textures and
// buffers, records transfer and compute passes into a command stream,
// submits the stream and waits on a SyncPoint before reading results back.
// gpucmd keeps each step explicit: nothing is submitted, transitioned or
// waited on implicitly.
//
// # Quick Start
//
//	dev, _ := software.New(software.Config{})
//	ctx, _ := gpucmd.New(dev)
//	defer ctx.Destroy()
//
//	enc := ctx.CreateCommandEncoder(gpucmd.CommandEncoderDesc{Name: "main"})
//	_ = enc.Start()
//	_ = enc.WithTransfer(func(p *gpucmd.TransferPass) error {
//	    if err := p.InitTexture(tex); err != nil {
//	        return err
//	    }
//	    return p.CopyBufferToTexture(upload.At(0), 16*4, tex.Mip(0), gpucmd.Extent{Width: 16, Height: 16, Depth: 1})
//	})
//	sp, _ := ctx.Submit(enc)
//	if !ctx.WaitFor(sp, time.Second) {
//	    // not done yet; WaitFor may be called again
//	}
//
// # Bindings
//
// A [ShaderDataLayout] lists the slots of one bind group; a slot's index is
// its position. A [ShaderData] type reports its layout and fills its values
// through a [ShaderDataEncoder]. [Context.CreateComputePipeline] checks each
// layout against the WGSL @group/@binding declarations, and
// [PipelineEncoder.Bind] checks that the data carries the pipeline's layout.
//
// # Passes
//
// A [CommandEncoder] holds at most one open pass. Opening a pass ends the
// previous one, and commands are methods of the pass values, so nothing can
// be recorded outside a pass. Resource state transitions are implied by the
// pass kind: the device makes copies visible to later compute passes and
// compute writes visible to later transfer passes.
//
// # Resources
//
// [Buffer], [Texture] and [TextureView] are small values holding a slot
// index and a generation. Destroying a resource invalidates every copy of
// its handle; later use fails with [ErrStaleHandle].
//
// # Devices
//
// The device is a [gpucore.Device]. backend/native runs on gogpu/wgpu HAL,
// backend/software runs copies and Go compute kernels on the CPU.
package gpucmd
