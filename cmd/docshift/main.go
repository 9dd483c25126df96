// Command docshift scaffolds and inspects migration packages. Because
// migration units are Go code compiled into their project's binary, the
// standalone command carries no units; projects embed cli.NewRootCommand
// with their own registry to migrate for real.
package main

import (
	"fmt"
	"os"

	"github.com/docshift/docshift/cli"
)

func main() {
	if err := cli.NewRootCommand(nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
