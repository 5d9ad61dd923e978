// Package checkin decides what happens when a ticket is scanned at the door.
//
// An Authority turns a raw QR payload into exactly one Outcome and applies at most one
// state change: the attended=false -> true transition, performed by a conditional write
// in the ticket store. Concurrent scans of one ticket from several devices therefore
// produce a single first entry; everyone else sees a duplicate (or a repeat entry when
// the event allows re-entry).
//
// Expected outcomes are values. Only infrastructure failures use the error return, and
// they always satisfy errors.Is(err, ticket.ErrUnavailable) so devices can retry.
package checkin
