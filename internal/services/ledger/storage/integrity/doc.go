// Package integrity signs and verifies the event log's hash chain.
//
// Every stream carries its own chain: each event hash covers the envelope and
// payload, each chain hash links to the previous event in the same stream, and the
// chain hash is signed with an HMAC key derived per stream from a root key.
package integrity
