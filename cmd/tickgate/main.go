// Command tickgate runs the tick engine with a headless or terminal window
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tickgate: %v\n", err)
		os.Exit(1)
	}
}
