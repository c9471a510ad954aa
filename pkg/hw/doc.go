// Package hw provides the hardware accessors an HWCP server drives.
//
// Two kinds of endpoints exist:
//   - Memory-mapped blocks (GPIO, XADC, raw registers and the paged memory
//     banks) are reached through a Mapper that hands out bounded Regions.
//   - Bus-attached peripherals are reached through a BusProvider that opens
//     a Bus session on one bus; SetTarget selects the slave.
//
// Every mapping and bus session is exclusive and must be released. WithRegion
// and WithBus bracket a sequence of accesses and release the accessor on every
// exit path:
//
//	err := hw.WithRegion(mapper, 0x41200000, 8, func(r hw.Region) error {
//		_, err := r.ReadAt(4, wire.WidthLong)
//		return err
//	})
//
// MemMapper and SimBus keep their state in memory and back the simulated
// server and the tests. DevMemMapper and DevBus reach real hardware through
// /dev/mem and /dev/i2c-N on Linux.
//
// All accessor failures wrap ErrHardwareIO.
package hw
