//go:build linux

package memory

import "golang.org/x/sys/unix"

func available() (int64, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, false
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return int64((uint64(info.Freeram) + uint64(info.Bufferram)) * unit), true
}
