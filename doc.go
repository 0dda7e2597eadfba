// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package lanes provides an in-process, multi-worker execution substrate for
// goja, the pure-Go ECMAScript interpreter.
//
// A [goja.Runtime] is, by design, single-threaded: exactly one goroutine may
// touch a given Runtime at any time. Package lanes lifts that restriction by
// letting a program spawn additional, fully isolated runtimes, each bound to
// a dedicated goroutine-backed worker (a [Lane]), and by providing a safe
// channel primitive (a [Linda]) through which those isolated runtimes
// exchange values.
//
// # Architecture
//
// A [Universe] is the process-wide container: it owns a fixed-size array of
// [Keeper] workers (each a dedicated, mutex-guarded goja.Runtime hosting the
// authoritative contents of one or more Lindas), a lane tracker, a
// self-destruct list for abandoned lanes, and configuration resolved via
// [Configure].
//
// A [Lane] pairs one goroutine with one runtime; in coroutine mode that same
// runtime is suspended and resumed through a pair of capacity-1 channels.
// The lane body is a compiled goja.Program that the new runtime runs
// afresh; the body's arguments cross from the creating runtime into the new
// lane's runtime via the inter-copy engine (package lanes/copier), which
// deep-copies values, preserves reference identity and cycles within one
// copy call, and proxies "deep" reference-counted shared objects instead of
// copying them.
//
// A [Linda] is a multi-key mailbox. Every Linda operation is routed to its
// assigned Keeper, which serializes access under its own mutex and exposes
// send/receive/get/set/limit/restrict/count/destruct as described in
// SPEC_FULL.md.
//
// # Cancellation
//
// Hard cancellation of a Lane uses [goja.Runtime.Interrupt], the only
// preemption mechanism goja itself offers; this package never attempts to
// preempt arbitrary host code by any other means.
//
// # Thread safety
//
// Values never cross a Lane boundary by reference, except for explicitly
// declared "deep" objects (see [DeepFactory]). Everything else is copied.
package lanes
