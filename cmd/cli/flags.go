package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func newGlobalFlags(addr *string, timeout *time.Duration) *flag.FlagSet {
	fs := flag.NewFlagSet("minibot", flag.ExitOnError)
	fs.StringVar(addr, "addr", "http://localhost:3000", "server base URL")
	fs.DurationVar(timeout, "timeout", 30*time.Second, "request timeout")
	return fs
}

// numberFlags is the shared -n flag set used by per-number subcommands.
type numberFlags struct {
	fs     *flag.FlagSet
	number *string
}

func newNumberFlags(name string) *numberFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &numberFlags{fs: fs, number: fs.String("n", "", "account number")}
}

func needNumber(args []string) string {
	sub := newNumberFlags("connect")
	_ = sub.fs.Parse(args)
	if *sub.number == "" {
		fmt.Fprintln(os.Stderr, "need -n")
		os.Exit(1)
	}
	return *sub.number
}
