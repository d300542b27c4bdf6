package gpucmd

// DispatchCount returns the number of workgroups of size k dispatched to
// cover n invocations: n/k + 1. One group is always added, so an exact
// multiple over-dispatches by one group. Shaders guard against
// out-of-range invocations. It returns 0 for k == 0.
func DispatchCount(n, k uint32) uint32 {
	if k == 0 {
		return 0
	}
	return n/k + 1
}

// DispatchGroups returns the workgroup counts covering size with
// workgroups of wg. Depth is counted only for extents deeper than one.
func DispatchGroups(size Extent, wg [3]uint32) [3]uint32 {
	z := uint32(1)
	if size.Depth > 1 {
		z = DispatchCount(size.Depth, wg[2])
	}
	return [3]uint32{
		DispatchCount(size.Width, wg[0]),
		DispatchCount(size.Height, wg[1]),
		z,
	}
}
