// Package accel is the accelerator side of the frame pipeline: images in
// effect-native layouts, an ordered execution queue, format conversion
// between images, and interop registration of GPU textures.
//
// All accelerator work goes through a single [Queue]. Work is validated when
// submitted and executed in submission order, so conversions and effect runs
// that touch the same image never race. The only explicit barriers are
// [Interop.Map] and [Interop.Unmap], which hand a registered texture between
// the graphics and accelerator domains.
//
//	q := accel.NewQueue()
//	in, _ := ctx.Register(texture)
//	_ = in.Map(q)
//	_ = accel.Transfer(in.Image(), effectInput, 1.0/255, q, &scratch)
//	_ = in.Unmap(q)
package accel
