// Package pki holds the identity primitives of keychat: secp256k1 key pairs
// and the ECDSA signatures they produce.
//
// Binary forms
//
//   - PublicKey: 33-byte SEC1 compressed point.
//   - SecretKey: 32-byte big-endian scalar in [1, n-1].
//   - Signature: 64-byte r‖s, both big-endian, low-S.
//
// Every binary form has a lowercase hex text form. Signatures are computed
// over SHA-256 of the message with RFC 6979 nonces, so signing is
// deterministic.
//
// Parsers return a *ParseError. Verification never returns an error: a bad
// signature, a malformed one and a wrong key all come back as false.
package pki
