// Command mcpbridge runs tasks with a local model driving the tools
// of the MCP providers found in the registry.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
