// Package sandbox abstracts isolated JavaScript execution behind a
// uniform Provider/Runtime/Context surface.
//
// A Provider creates Runtimes; a Runtime creates Contexts; a Context
// is one isolated global object that supports eval, global get/set,
// and host function injection. Four providers ship:
//
//   - goja: the embedded pure-Go engine. Synchronous eval, strong
//     script-level isolation (one engine instance per context),
//     best-effort interruption via an interrupt handler.
//   - vm: the goja engine wrapped with a per-script hard timeout.
//     Every eval races a watchdog that interrupts the engine.
//   - worker: a dedicated goroutine pinned to an OS thread owns the
//     engine; all access is serialized over a request channel. Eval
//     is asynchronous only. Terminate interrupts the engine; Dispose
//     closes the request channel and joins the thread.
//   - hostrealm: a process-shared engine with no isolation between
//     contexts. Diagnostic use only; never chosen by auto-selection.
//
// Capabilities beyond the base Context interface are discovered by
// type assertion: AsyncEvaler for asynchronous eval, Interruptible
// for interrupt handlers, Terminator for hard cancellation.
//
// Host functions cross the boundary as HostFunc values passed to
// SetGlobal. Their return values surface as guest values; their
// errors surface as guest exceptions.
package sandbox
