//go:build !linux

package netapp

// setAffinity is a no-op on platforms without a Linux-style affinity
// syscall; the reactor still runs correctly, just without pinning.
func setAffinity(coreID int) {}
