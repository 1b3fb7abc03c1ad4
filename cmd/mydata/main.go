// Command mydata drives one scan-verify-upload run of the data-archive
// agent core from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err) //nolint:errcheck
		os.Exit(1)
	}
}
