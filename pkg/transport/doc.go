// Package transport carries encoded HWCP messages between a client and a
// hardware server.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR message records      │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│     TLS 1.3 (optional)         │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// # Framing
//
// Each message is preceded by its length as a 4-byte big-endian integer.
// Frames larger than the configured maximum (DefaultMaxMessageSize by
// default) are rejected on both ends.
//
// # Connections
//
// Conn implements the synchronous Transport contract: Send writes one frame
// and Receive blocks for the next one, optionally bounded by a timeout.
// Every connection gets a UUID that tags its frame and state log events.
// Server accepts connections and runs a Handler per connection; Dial opens
// a client connection.
package transport
