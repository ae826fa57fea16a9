// Package handlers holds the typed registry of side-effect functions the
// reconciliation engine calls once it has decided what to do with a remote
// record. Every key is known at compile time; registering an unknown key or
// registering a key twice fails at startup, not in the middle of a run.
//
// Dispatch runs a handler inside a transactional scope, so a failing
// handler leaves no partial writes behind.
package handlers
