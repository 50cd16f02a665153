// Package subscription implements the client-side subscription registry.
//
// A subscription maps a resource URI to a local callback. The server's
// update notification only names the URI that changed; the registry then
// reads the resource again and hands the fresh value to the callback, so
// callbacks always observe a complete, current value.
//
// # Acknowledgment
//
// Entries are recorded only after the server acknowledges the subscribe
// request with success, and removed only after it acknowledges the
// unsubscribe request. A later Subscribe for the same URI replaces the
// callback.
//
// # Lifecycle
//
// Entries are memory-resident and are kept across reconnects of the same
// session. Notifications for URIs without an entry are dropped.
package subscription
