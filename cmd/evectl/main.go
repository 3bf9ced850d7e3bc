// Command evectl inspects exchange history with the same code paths the
// bot uses at startup.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
