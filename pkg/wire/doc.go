// Package wire defines the HWCP message model and its CBOR wire format.
//
// A HWCP message is a fixed header (command, access target, ack state,
// request id, timeout, retries, timestamp) plus one typed payload. The
// payload travels in a generic form that is one of:
//   - Scalars: an ordered list of unsigned integers (register access shapes)
//   - Tree: a string-keyed tree of typed values (configuration shapes)
//   - Absent: the literal text "VOID_PAYLOAD"
//
// # Payload Shapes
//
// Register access shapes are positional:
//
//	BusAccess          [bus, slave, register, width, data...]
//	BasicAccess        [address, register, width, data...]      (XADC, GPIO, RawRegister)
//	PagedMemoryAccess  [address, page, offset, width, data...]  (DDR, QDR, QSPI)
//
// Data is carried as width-units packed little-endian (see Pack and Unpack).
// Configuration shapes (BusConfig, ModuleConfig) are rebuilt by key.
//
// # Validation
//
// Message.SetPayload checks that the payload shape fits the message's access
// target and command before attaching it. The typed getters (BusAccess,
// BasicAccess, PagedMemoryAccess, BusConfig, ModuleConfig) check the same rules
// again and rebuild the concrete value from the generic form.
//
// # Equality
//
// Message.HeaderEqual compares header fields only. Payload equality is
// defined per shape through Payload.Equal.
package wire
