package lanes

import "github.com/dop251/goja"

// ErrorTraceLevel controls how much stack-trace detail a Lane captures
// when its body raises an uncaught error (spec.md §4.4).
type ErrorTraceLevel int

const (
	// ErrorTraceMinimal preserves only the raw error value; no error
	// handler is installed.
	ErrorTraceMinimal ErrorTraceLevel = iota
	// ErrorTraceBasic captures each stack frame as "source:line".
	ErrorTraceBasic
	// ErrorTraceExtended captures each stack frame as a full record.
	ErrorTraceExtended
)

// StackFrame is one captured frame, populated according to the lane's
// ErrorTraceLevel (Basic populates only Source/Line; Extended populates
// all fields).
type StackFrame struct {
	Source   string
	Line     int
	Name     string
	NameWhat string
	What     string
}

// captureTrace converts a goja runtime's current call stack into frames per
// level. It is called from Lane.run once invokeBody has returned an error.
func captureTrace(rt *goja.Runtime, level ErrorTraceLevel) []StackFrame {
	if level == ErrorTraceMinimal {
		return nil
	}
	var frames []StackFrame
	for _, f := range rt.CaptureCallStack(0, nil) {
		pos := f.Position()
		sf := StackFrame{
			Source: pos.Filename,
			Line:   pos.Line,
		}
		if level == ErrorTraceExtended {
			sf.Name = f.FuncName()
			sf.NameWhat = "function"
			sf.What = "script"
		}
		frames = append(frames, sf)
	}
	return frames
}
