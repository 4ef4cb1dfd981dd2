package symbol

// DebugInfoSource supplies debug-info images for stripped binaries, keyed
// by build id. The resolver never fetches anything itself; a source is the
// caller's bridge to debuginfod, a symbol server, or the local
// /usr/lib/debug tree.
type DebugInfoSource interface {
	DebugInfo(buildID string) ([]byte, error)
}

// DebugInfoSourceFunc adapts a plain function to DebugInfoSource.
type DebugInfoSourceFunc func(buildID string) ([]byte, error)

func (f DebugInfoSourceFunc) DebugInfo(buildID string) ([]byte, error) {
	return f(buildID)
}

type options struct {
	demangle  bool
	debugInfo DebugInfoSource
}

// Option configures Analyze.
type Option func(*options)

func defaultOptions() options {
	return options{demangle: true}
}

// WithDemangle toggles demangling of C++/Rust linkage names in resolved
// frames. On by default.
func WithDemangle(on bool) Option {
	return func(o *options) { o.demangle = on }
}

// WithDebugInfoSource installs a source consulted when the image carries a
// build id but no debug sections.
func WithDebugInfoSource(src DebugInfoSource) Option {
	return func(o *options) { o.debugInfo = src }
}
