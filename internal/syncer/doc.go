// Package syncer reconciles local users with the remote authentication
// service.
//
// A sync run pages the local users (Pager), posts every page to the remote
// service and accumulates the returned differences together with the remote
// statistics. Once every page has been answered the differences are applied
// locally by the Resolver, one record at a time, through the typed handler
// registry. Record failures are logged and reported but never stop the run;
// unknown actions and transport errors do.
//
// Pages may be sent concurrently (Options.Concurrency) and differences may be
// applied by several workers (Options.ApplyWorkers). The Resolver serializes
// work on the same email, so concurrent application stays safe.
//
// Cancelling the context stops sending further pages. The run then returns
// the statistics gathered so far in a Result marked Partial.
package syncer
