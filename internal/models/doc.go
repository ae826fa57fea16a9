// Package models defines the entities exchanged during user reconciliation.
//
// LocalUser is the host application's view of a user and Syncable is the
// capability any host type implements to take part in a sync. RemoteUser is
// an immutable snapshot of a user as the remote service sees it, optionally
// carrying the Action the local side must apply. LocalPayload and
// RemoteRecord are their JSON wire forms.
//
// Stats and Counter carry the created/updated/deleted counters reported for
// each side of a sync. Modes switches optional behavior on per invocation.
package models
