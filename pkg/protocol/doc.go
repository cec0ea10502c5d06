// ABOUTME: Sendspin wire protocol package
// ABOUTME: Defines protocol messages and the binary audio frame codec
// Package protocol implements the Sendspin wire format.
//
// Text frames carry a JSON envelope {"type": ..., "payload": ...}.
// Binary frames carry audio as a 1 byte type, an 8 byte big-endian
// server timestamp and the raw payload.
//
// Example:
//
//	env, err := protocol.ParseEnvelope(data)
//	var st protocol.ServerTime
//	err = env.Decode(&st)
package protocol
