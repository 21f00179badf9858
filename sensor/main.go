package main

import (
	"os"

	"github.com/telhawk-systems/proximity-stack/sensor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
