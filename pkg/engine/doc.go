// Package engine owns one guest isolation domain end to end.
//
// An Engine provisions a sandbox runtime, injects the polyfill surface
// (console, timers, require, the __sendToHost bridge), executes one
// bundle under a watchdog deadline, routes traffic in both directions,
// and aggregates diagnostics. Destroying the engine is terminal: the
// watchdog path (fatalError then force-destroy) and the ordinary
// Destroy both release every host resource the guest held.
//
// All guest-facing work funnels through a single internal loop
// goroutine, so batches, timer fires, and host messages reach the
// sandbox serialized and in call order. Engines share nothing with
// each other; callback ids, timers, and registries are per-engine.
package engine
