package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7531"
	pidFile    = "lecternd.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "config":
		err = cmdConfig()
	case "packages":
		err = cmdPackages(os.Args[2:])
	case "register":
		err = cmdRegister(os.Args[2:])
	case "registrations":
		err = cmdRegistrations()
	case "launch":
		err = cmdLaunch(os.Args[2:])
	case "report":
		err = cmdReport(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("lectern %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Lectern - Local SCORM Runtime and Registration Manager

Usage:
  lectern <command> [arguments]

Setup Commands:
  init                 Initialize Lectern (first-time setup)
  config               Show current configuration

Daemon Commands:
  start                Start the Lectern daemon
  stop                 Stop the Lectern daemon
  status               Show daemon status
  logs                 View daemon logs

Content Commands:
  packages             List installed content packages
  packages install     Install a package from a directory
  packages info        Show package details

Registration Commands:
  register             Enroll a learner in a package
  registrations        List registrations and their outcomes
  launch               Mint a launch token for a registration
  report               Show the progress report for a registration

Integration Commands:
  mcp                  Start MCP server (stdio, for agent integration)

Other:
  help                 Show this help message
  version              Show version information

Examples:
  lectern start                              # Start daemon
  lectern packages install ./golf-course     # Install a package
  lectern register golf-sample learner-001   # Enroll a learner
  lectern launch <registration-id>           # Get a launch token
  lectern report <registration-id>           # Show progress`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
