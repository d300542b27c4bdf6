package gpucmd

import (
	"errors"
	"fmt"
)

// Binding and pipeline errors.
var (
	// ErrLayoutMismatch is returned when a binding layout disagrees with the
	// shader's declared bindings, or when bound data carries a different
	// layout than the pipeline expects.
	ErrLayoutMismatch = errors.New("gpucmd: binding layout mismatch")

	// ErrIncompleteBinding is returned when a binding slot was never written,
	// or a pipeline group was never bound before Dispatch.
	ErrIncompleteBinding = errors.New("gpucmd: incomplete binding")

	// ErrEncoderReused is returned when a ShaderDataEncoder is finished twice.
	ErrEncoderReused = errors.New("gpucmd: shader data encoder already finished")

	// ErrBindingKind is returned when a value does not fit the slot's kind.
	ErrBindingKind = errors.New("gpucmd: value does not match binding kind")

	// ErrEntryPointNotFound is returned when a shader has no compute entry
	// point with the requested name.
	ErrEntryPointNotFound = errors.New("gpucmd: compute entry point not found")

	// ErrShaderParse is returned when shader source does not compile.
	ErrShaderParse = errors.New("gpucmd: shader parse failed")

	// ErrWorkgroupCountZero is returned when a dispatch has a zero dimension.
	ErrWorkgroupCountZero = errors.New("gpucmd: workgroup count must be non-zero")
)

// Resource errors.
var (
	// ErrSubresourceOutOfRange is returned when a mip level, array layer or
	// copy region falls outside its texture.
	ErrSubresourceOutOfRange = errors.New("gpucmd: subresource out of range")

	// ErrStaleHandle is returned when a handle refers to a destroyed object.
	ErrStaleHandle = errors.New("gpucmd: stale handle")

	// ErrResourceInUse is returned when a texture is destroyed while views of
	// it are still alive.
	ErrResourceInUse = errors.New("gpucmd: resource in use")

	// ErrNotHostVisible is returned when host data is requested for a buffer
	// in device memory.
	ErrNotHostVisible = errors.New("gpucmd: buffer is not host visible")

	// ErrInvalidDescriptor is returned for zero sizes and unsupported formats.
	ErrInvalidDescriptor = errors.New("gpucmd: invalid descriptor")

	// ErrNilDevice is returned when creating a Context without a device.
	ErrNilDevice = errors.New("gpucmd: device is nil")
)

// Command stream errors.
var (
	// ErrPassOpen is returned by Start and Submit while a pass is open.
	ErrPassOpen = errors.New("gpucmd: a pass is open")

	// ErrPassEnded is returned when recording into a pass after End.
	ErrPassEnded = errors.New("gpucmd: pass already ended")

	// ErrEncoderNotStarted is returned when recording or submitting an
	// encoder that has not been started.
	ErrEncoderNotStarted = errors.New("gpucmd: command encoder not started")

	// ErrEncoderDestroyed is returned when using a destroyed command encoder.
	ErrEncoderDestroyed = errors.New("gpucmd: command encoder destroyed")

	// ErrInFlight is returned when a recording slot or encoder is still
	// referenced by an unresolved submission.
	ErrInFlight = errors.New("gpucmd: submission still in flight")

	// ErrInvalidRowPitch is returned when bytesPerRow is smaller than one
	// row of texels.
	ErrInvalidRowPitch = errors.New("gpucmd: row pitch smaller than row size")

	// ErrCopyOutOfBounds is returned when a copy exceeds a buffer's size.
	ErrCopyOutOfBounds = errors.New("gpucmd: copy range out of bounds")

	// ErrTextureNotInitialized is returned when copying into a texture that
	// was never passed to InitTexture.
	ErrTextureNotInitialized = errors.New("gpucmd: texture not initialized")
)

// LayoutMismatchError describes the first slot at which a data layout and a
// shader's bindings disagree.
type LayoutMismatchError struct {
	Group uint32
	Index int
	Name  string

	// Want is the kind declared by the data layout, Got the shader's.
	// Either is "none" when the slot is missing on that side.
	Want string
	Got  string
}

func (e *LayoutMismatchError) Error() string {
	return fmt.Sprintf("gpucmd: group %d binding %d (%s): layout has %s, shader has %s",
		e.Group, e.Index, e.Name, e.Want, e.Got)
}

// Unwrap makes errors.Is(err, ErrLayoutMismatch) hold.
func (e *LayoutMismatchError) Unwrap() error { return ErrLayoutMismatch }
