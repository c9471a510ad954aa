// Package interaction serves and issues HWCP requests.
//
// A Server answers decoded requests against hardware collaborators from
// package hw:
//
//	READ/WRITE  I2C                      -> hw.BusProvider, register per unit
//	READ/WRITE  XADC, GPIO, RAW_REGISTER -> hw.Mapper at address + register
//	READ/WRITE  DDR, QDR, QSPI           -> hw.Mapper at address + page*pageSize + offset
//	CONFIGURE   I2C                      -> numeric parameter written, config retained
//	CONFIGURE   UNSUPPORTED              -> module config stored by name
//	NOTIFY/ALERT                         -> acknowledged
//
// Everything else, and every request that fails validation or hardware
// access, is answered with a Nack that repeats the request header. Writes
// reply with the values read back after writing.
//
// A Client encodes requests, sends them over a transport.Transport and
// waits for the reply with the same request id, honoring the header's
// timeout (milliseconds) and retry count.
package interaction
