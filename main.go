package main

import (
	"os"

	"McpAgent/internal/cli"
	"McpAgent/internal/logger"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		logger.Fatal("%v", err)
	}
}
