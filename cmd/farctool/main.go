// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

// farctool inspects, extracts, repairs and packs FARC archives.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
)

// command is one farctool subcommand.
type command struct {
	run     func(ctx context.Context, env *environment, args []string) error
	name    string
	summary string
}

// environment carries shared subcommand state.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	config *Config
}

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

var commands = []command{
	{name: "info", summary: "print archive header counts and entry list", run: runInfo},
	{name: "extract", summary: "extract entries to a directory", run: runExtract},
	{name: "dehash", summary: "recover entry names from a candidate list", run: runDehash},
	{name: "pack", summary: "pack a directory into an archive", run: runPack},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return nil
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			env := &environment{stdout: stdout, stderr: stderr}
			err := cmd.run(ctx, env, args[1:])
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
	}

	printUsage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

// newFlagSet creates subcommand flag set with global flags attached.
func newFlagSet(env *environment, name string, g *globalFlags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("farctool "+name, pflag.ContinueOnError)
	flagSet.SetOutput(env.stderr)
	flagSet.StringVar(&g.configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	return flagSet
}

// setup loads config and builds logger after flag parsing.
func (g *globalFlags) setup(env *environment) error {
	cfg, err := LoadConfig(g.configPath)
	if err != nil {
		return err
	}

	levelName := g.logLevel
	if levelName == "" {
		levelName = cfg.LogLevel
	}

	level, err := parseLogLevel(levelName)
	if err != nil {
		return err
	}

	env.config = cfg
	env.logger = slog.New(slog.NewTextHandler(env.stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// parseArgs parses subcommand flags and checks positional argument count.
func parseArgs(env *environment, flagSet *pflag.FlagSet, g *globalFlags, args []string, want int, usage string) ([]string, error) {
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	positional := flagSet.Args()
	if len(positional) != want {
		return nil, fmt.Errorf("usage: farctool %s", usage)
	}

	if err := g.setup(env); err != nil {
		return nil, err
	}

	return positional, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "farctool - FARC archive tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE")
	fmt.Fprintln(w, "    farctool <command> [flags] <args>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "COMMANDS")
	for _, cmd := range commands {
		fmt.Fprintf(w, "    %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'farctool <command> --help' for command flags.")
}
