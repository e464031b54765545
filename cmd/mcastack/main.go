// Command mcastack inspects and processes spectral stacks stored as zarr
// arrays, traversing them in memory-bounded chunks.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
