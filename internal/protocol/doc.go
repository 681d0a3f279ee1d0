// Package protocol owns the relay and command wire contracts.
//
// Relay packets are comma-delimited text:
//
//	IBC_TRANSFER,<amount>,<source_zone_id>,<sender_name>,<destination_zone_id>,<transaction_id>
//
// Commands are space-delimited text:
//
//	transfer <destination_zone_id> <amount> <transaction_id>
//	balance
//
// Both are carried one message per connection and terminated by connection close.
package protocol
