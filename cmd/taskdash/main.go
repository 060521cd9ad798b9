package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taskdash: %v\n", err)
		os.Exit(1)
	}
}
