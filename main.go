// Package main is the entry point for the wbr application
package main

import (
	"github.com/ethpandaops/wbr/cmd"
)

func main() {
	cmd.Execute()
}
