// Package gpucore defines the device contract that gpucmd records against.
//
// A [Device] owns every native GPU allocation. The root gpucmd package keeps
// generation-tagged handles on top of the opaque IDs defined here
// ([BufferID], [TextureID], ...) and lowers a recorded command stream into a
// [CommandList] that the device executes on [Device.Submit].
//
//	               +------------------+
//	               |      gpucmd      |
//	               | (Context, passes)|
//	               +--------+---------+
//	                        | CommandList
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v---------+
//	| backend/native  |          | backend/software |
//	|  (hal.Device)   |          |   (CPU kernels)  |
//	+--------+--------+          +------------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	+-----------------+
//
// # Resource Management
//
// Devices hand out IDs starting at 1; [InvalidID] is never a live resource.
// Destroying an ID releases the allocation, but the device may defer the
// release until submissions referencing it have completed.
//
// # Submission
//
// [Device.Submit] returns a submission index. Indices are strictly increasing
// per device, and [Device.Wait] on index N returns true only once every
// submission up to and including N has completed.
package gpucore
