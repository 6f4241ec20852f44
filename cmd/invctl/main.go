package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rl1809/warehouse-ledger/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "invctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
