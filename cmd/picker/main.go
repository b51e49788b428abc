// Command picker is the handheld client for the pick floor. It keeps a local
// queue cache, picks units offline-first and mirrors every change to the API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}
