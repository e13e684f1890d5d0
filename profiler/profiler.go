// Package profiler defines the profiling seam threaded through recording
// and engine entry points.
package profiler

type ProfilerGroup interface {
	Start(label string) ProfilerGroup
	End()
}

// Nop is a ProfilerGroup that discards all spans.
var Nop ProfilerGroup = nopGroup{}

type nopGroup struct{}

func (nopGroup) Start(string) ProfilerGroup { return nopGroup{} }
func (nopGroup) End()                       {}
