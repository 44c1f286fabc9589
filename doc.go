// Package fxstream runs a per-frame media pipeline between a host
// compositing application and accelerator image effects.
//
// # Overview
//
// Each frame the host names one scene slot. The pipeline fetches the
// host's input image into a cached GPU texture, converts it into the
// format the slot's effect expects, runs the effect on the accelerator
// queue, converts the result back into a host texture and composites it
// into the render target of every output stream.
//
//	p, err := fxstream.New(fxstream.Config{
//	    Device:  device,
//	    Queue:   queue,
//	    Host:    h,
//	    Effects: effects,
//	})
//	if err != nil {
//	    os.Exit(int(fxstream.CodeOf(err)))
//	}
//	err = p.Run(ctx)
//
// # Error Model
//
// [Pipeline.Step] returns a [StepResult] for one iteration. Frame-local
// failures skip the frame and are posted to the host diagnostic sink.
// Resource failures are returned as [*FatalError] with a stable
// [ExitCode]; [Pipeline.Run] releases everything and stops on the first
// one.
//
// # Threading
//
// A Pipeline is driven from one goroutine. Accelerator work is ordered on
// a single [accel.Queue]; interop map and unmap are the only
// synchronization points.
package fxstream
