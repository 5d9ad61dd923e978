// Package roster is the client-side view of one event's guest list.
//
// A State only changes through Apply. A Snapshot action replaces everything the client
// knows (one-way sync from the server); Changed and Removed fold live feed deltas in.
// Readers get copies, so a State can back a terminal dashboard while the feed keeps
// writing to it.
package roster
