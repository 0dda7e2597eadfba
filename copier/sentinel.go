package copier

import "github.com/dop251/goja"

// sentinelKind enumerates the keeper-direction lookup sentinels described in
// spec.md §4.1 "Keeper-direction asymmetries": values a keeper must be able
// to hold even though a keeper's own runtime has no lookup database of its
// own to resolve them against.
type sentinelKind int

const (
	sentinelNil sentinelKind = iota
	sentinelLookup
	sentinelFunctionLookup
	sentinelUserdataClone
	sentinelUserdataLookup
)

// sentinelValue is a copier-internal placeholder never exposed to script
// code: it stands in, inside a keeper's storage, for a value that could not
// be held directly (a lane-side lookup name, or the explicit nil-sentinel).
// It implements goja.Value only far enough to flow through this package's
// own copy cache; it is never passed to a real goja.Runtime API.
type sentinelValue struct {
	goja.Value
	kind sentinelKind
	name string
}

func sentinelFor(kind sentinelKind, payload any) *sentinelValue {
	sv := &sentinelValue{kind: kind}
	if name, ok := payload.(string); ok {
		sv.name = name
	}
	return sv
}

// resolveSentinel turns a sentinel back into a live value in ctx.DstRT: a
// lookup sentinel resolves via ctx.DstLookup, and a nil sentinel resolves to
// goja's Null value (spec.md's nil survives the keeper round-trip as
// Null/Null, distinct from "absent").
func resolveSentinel(ctx *Context, sv *sentinelValue, path string) (goja.Value, error) {
	switch sv.kind {
	case sentinelNil:
		return goja.Null(), nil
	case sentinelLookup, sentinelFunctionLookup:
		if ctx.DstLookup != nil {
			if v, ok := ctx.DstLookup.Resolve(sv.name); ok {
				return v, nil
			}
		}
		return nil, &TransferError{Path: path, Message: "lookup sentinel " + sv.name + " could not be resolved in destination state"}
	default:
		return nil, &TransferError{Path: path, Message: "unresolvable userdata sentinel"}
	}
}
