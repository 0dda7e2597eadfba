package lanes

import (
	"github.com/dop251/goja"

	"github.com/joeycumines/golanes/copier"
)

// copyValues runs the inter-copy engine between two runtimes this Universe
// owns, wiring in the pair's lookup databases, metatable tables, and the
// Universe-wide deep-object registry.
func (u *Universe) copyValues(srcRT, dstRT *goja.Runtime, dir copier.Direction, values ...goja.Value) ([]goja.Value, error) {
	srcExt := u.stateExtensions(srcRT)
	dstExt := u.stateExtensions(dstRT)
	ctx := &copier.Context{
		SrcRT:              srcRT,
		DstRT:              dstRT,
		SrcLookup:          srcExt.lookup,
		DstLookup:          dstExt.lookup,
		SrcMetatables:      srcExt.metatables,
		DstMetatables:      dstExt.metatables,
		Deep:               u.deep,
		Direction:          dir,
		Verbose:            u.opts.verboseErrors,
		ConvertMaxAttempts: u.opts.convertMaxAttempts,
		ConvertFallback:    u.opts.convertFallbackFunc,
		Alloc:              u.alloc,
	}
	return copier.Copy(ctx, values...)
}
