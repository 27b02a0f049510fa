// Command evolve runs critique-driven evolution cycles on the city
// screensaver firmware.
package main

import (
	"fmt"
	"os"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
