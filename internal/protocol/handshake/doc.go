// Package handshake authenticates the peer on one ordered, duplex message
// stream by challenge-response over its secp256k1 key.
//
//	Initiator                         Responder
//	    |-- public key (33 bytes) ------->|  WaitingForPeerKey
//	    |<------------ challenge (32) ----|  WaitingForSignature
//	    |-- signature over challenge ---->|
//	    |                                 |  Authenticated
//	    |<========= application data ====>|
//
// Both roles are plain state machine values advanced by one Receive call per
// inbound message. A message that does not parse as what the current state
// expects, or a signature that does not verify, is fatal: Receive returns an
// error, the machine is terminated and the caller closes the connection.
// There is no retry and a challenge is never issued twice.
//
// Accept and Prove drive the machines over a Transport until authenticated.
package handshake
