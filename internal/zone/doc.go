// Package zone owns a simulated chain's token balance.
//
// A zone node serves two independent surfaces:
// - command: `transfer` debits the balance and emits a relay packet to the zone's relayer
// - relay: inbound packets credit the balance and append a completion record
//
// The balance is only written by those two paths, both under the node mutex.
// Sends are fire-and-forget: a failed send keeps the debit.
package zone
