package gpucore

import "time"

// Device is the native GPU collaborator.
//
// Implementations:
//   - backend/native.Device runs on gogpu/wgpu HAL (Vulkan, or noop for tests)
//   - backend/software.Device executes copies and Go kernels on the CPU
//
// Create and Destroy methods must be safe for concurrent use. Submit may be
// called from multiple goroutines; each call is one submission.
type Device interface {
	// Name returns a human-readable device name for logs.
	Name() string

	CreateBuffer(desc *BufferDesc) (BufferID, error)
	DestroyBuffer(id BufferID)

	// BufferData returns the host-visible bytes of an Upload or Shared buffer.
	// The slice aliases device memory and stays valid until DestroyBuffer.
	BufferData(id BufferID) ([]byte, error)

	CreateTexture(desc *TextureDesc) (TextureID, error)
	DestroyTexture(id TextureID)

	CreateTextureView(texture TextureID, desc *TextureViewDesc) (TextureViewID, error)
	DestroyTextureView(id TextureViewID)

	CreateShader(desc *ShaderDesc) (ShaderID, error)
	DestroyShader(id ShaderID)

	CreateComputePipeline(desc *ComputePipelineDesc) (PipelineID, error)
	DestroyComputePipeline(id PipelineID)

	// Submit executes a command list and returns its submission index.
	Submit(list *CommandList) (uint64, error)

	// Completed returns the highest submission index known to be complete.
	Completed() uint64

	// Wait blocks until submission index has completed or timeout elapses.
	// It reports whether the submission completed.
	Wait(index uint64, timeout time.Duration) bool

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device. All resources must be destroyed first.
	Destroy()
}
