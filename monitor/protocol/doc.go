// Package protocol defines the data model and line-oriented wire codec shared
// by the fleet monitor and its broker and subscriber clients.
//
// Every message is a sequence of newline-terminated records, each holding a
// single scalar: enum values are written as their symbolic names and integers
// as base-10 text. There is no framing beyond the newline, so readers and
// writers agree on message shape purely by protocol state:
//
//	client -> monitor   ROLE
//	broker -> monitor   subscriberPort, peerPort, then repeated TAG, count
//	monitor -> broker   repeated TAG, ip, peerPort (peer membership events)
//	subscriber          count -> (ip, subscriberPort, delta)* Done -> ack
package protocol
