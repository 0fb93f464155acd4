package main

import (
	"fmt"
	"os"

	"github.com/yungbote/procurement-graph/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "procgraph:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
