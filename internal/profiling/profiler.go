// Package profiling wraps runtime/pprof for the CLI's profiling flags.
package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// Profiler manages at most one CPU profile and one execution trace.
type Profiler struct {
	cpuFile   *os.File
	traceFile *os.File
}

func New() *Profiler {
	return &Profiler{}
}

// StartCPU starts CPU profiling into path. The returned cleanup stops
// profiling and flushes the file.
func (p *Profiler) StartCPU(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, qaerrors.IO("create CPU profile file", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, qaerrors.InternalError("start CPU profile", err)
	}
	p.cpuFile = f

	return func() {
		pprof.StopCPUProfile()
		_ = p.cpuFile.Close()
		p.cpuFile = nil
	}, nil
}

// StartTrace starts execution tracing into path. The returned cleanup
// stops the trace and flushes the file.
func (p *Profiler) StartTrace(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, qaerrors.IO("create trace file", err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, qaerrors.InternalError("start execution trace", err)
	}
	p.traceFile = f

	return func() {
		trace.Stop()
		_ = p.traceFile.Close()
		p.traceFile = nil
	}, nil
}

// WriteHeap writes a point-in-time heap profile to path. Collects
// garbage first so the snapshot reflects live objects.
func (p *Profiler) WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return qaerrors.IO("create heap profile file", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return qaerrors.InternalError("write heap profile", err)
	}
	return nil
}
