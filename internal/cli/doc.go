// Package cli implements the operator commands of the connector.
//
// Commands:
//   - sync:    reconcile local users with the remote service
//   - export:  write an encrypted dump of local users
//   - import:  apply a dump produced for this tenant
//   - serve:   run the webhook endpoint until interrupted
//   - migrate: apply local store migrations
//
// Global settings come from internal/config; every command parses its own
// flags on top of them. Run is the single entry point used by main.
package cli
