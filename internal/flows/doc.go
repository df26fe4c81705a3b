// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunAuthorize, RunLogin, RunRenew) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. Store, guard and token calls are all injected as funcs, so
// tests drive every branch with plain fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the record store, session guard, token
// manager, failed-attempt tracker, audit dispatcher and metrics. They do NOT
// own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSyncAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
//   - Return infrastructure errors from RunAuthorize. They become outcomes.
package flows
