// Command lakerun runs Starlake jobs and warehouse queries from a project
// workspace.
package main

import (
	"context"
	"os"

	"github.com/roach88/lakerun/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
