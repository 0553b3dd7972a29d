// Command breeze renders templates and runs the breeze admin server.
package main

import (
	"fmt"
	"os"
)

const usage = `usage: breeze <command> [flags]

commands:
  render   render a view or inline template to stdout
  warm     precompile every view into the cache
  serve    run the admin HTTP server and maintenance jobs
  reload   signal a running server to reload settings
  mcp      serve MCP tools over stdio
  stats    print cache statistics from a running server
  version  print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "render":
		runRender(args)
	case "warm":
		runWarm(args)
	case "serve":
		runServe(args)
	case "reload":
		if !signalRunningServer() {
			fmt.Fprintln(os.Stderr, "Error: no running breeze server found")
			os.Exit(1)
		}
	case "mcp":
		runMCP(args)
	case "stats":
		runStats(args)
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
