//go:build linux

package netapp

import (
	"log"

	"golang.org/x/sys/unix"
)

// setAffinity makes a best-effort attempt to pin the calling OS thread to
// coreID. Failure is logged, not fatal: a reactor that loses its pinning
// still runs correctly, just without the cache-locality guarantee.
func setAffinity(coreID int) {
	if coreID < 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Printf("netapp: set affinity to core %d failed: %v", coreID, err)
	}
}
