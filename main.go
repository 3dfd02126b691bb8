package main

import (
	"fmt"
	"os"

	"omnibus_dev_v1_202610/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
