package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "validate":
		os.Exit(validateCmd(os.Args[2:]))
	case "version", "--version":
		fmt.Println(versionLine())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`refetch

Keeps shell commands fetched: each configured controller runs its command,
retries failures with backoff, refetches when its dependencies change and
again on its interval.

Usage:
  refetch <command> [flags]

Commands:
  run          Start every controller and reload on config changes
  validate     Check a config file and exit
  version      Show the version
  help         Show this message

Environment:
  REFETCH_CONFIG           Config file (default: $REFETCH_CONFIG_DIR/refetch.yaml)
  REFETCH_CONFIG_DIR       Directory for the default config (default: .)
  REFETCH_LOG_LEVEL        debug, info, warn or error (default: info)
  REFETCH_LOG_FORMAT       console or json (default: console)
  REFETCH_LOG_FILE         Append logs to this file instead of stderr
  REFETCH_METRICS_ADDR     Serve Prometheus metrics on this address
  REFETCH_STATE_DIR        Write state.json here and hold a run lock
  REFETCH_RELOAD_DEBOUNCE  Settle time before a config reload (default: 100ms)
  REFETCH_NO_STATUS        Disable the live status display

Examples:
  refetch validate -config refetch.yaml
  refetch run -once
  REFETCH_METRICS_ADDR=:9100 refetch run

Run 'refetch <command> -h' for details.`)
}
