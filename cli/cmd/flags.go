// Package cmd provides CLI commands for the filegeek binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// ConfigFlag locates the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to filegeek.yaml config file",
		EnvVars: []string{"FILEGEEK_CONFIG"},
	}

	// FormatFlag selects output format: text, json, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, json, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// PlainFlag disables the live TUI view even on a TTY.
	PlainFlag = &cli.BoolFlag{
		Name:  "plain",
		Usage: "Disable the live view, print the final result only",
	}

	// VerboseFlag enables structured diagnostic logging on stderr.
	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable diagnostic logging on stderr",
	}

	// SessionFlag names the target session.
	SessionFlag = &cli.StringFlag{
		Name:    "session",
		Aliases: []string{"s"},
		Usage:   "Session id (omit to create a new session)",
	}
)

// CommonFlags returns the flags every command accepts.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		FormatFlag,
		NoColorFlag,
		VerboseFlag,
	}
}
