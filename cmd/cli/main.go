// Command minibot is an operator CLI for the session manager HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `minibot CLI
Usage:
  minibot -addr URL <cmd> [args]

Commands:
  version
  connect       -n <number>                         (pair or restore)
  active
  ping
  connect-all
  reconnect
  update-config -n <number> KEY=VALUE [KEY=VALUE...] (sends OTP)
  verify-otp    -n <number> -otp <code>
  getabout      -n <number> -t <target>
`)
	os.Exit(2)
}

// parseSettings turns KEY=VALUE args into a settings map.
func parseSettings(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad setting %q, want KEY=VALUE", a)
		}
		out[k] = v
	}
	return out, nil
}

// main dispatches subcommands against the server API.
func main() {
	// global flags
	var addr string
	var timeout time.Duration
	fs := newGlobalFlags(&addr, &timeout)
	fs.Usage = usage
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		usage()
	}
	cmd := fs.Arg(0)
	rest := fs.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	api := newAPIClient(addr, timeout)

	switch cmd {

	case "version":
		fmt.Printf("minibot %s (%s)\n", version, buildDate)

	case "connect":
		number := needNumber(rest)
		resp, err := api.connect(ctx, number)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "active":
		resp, err := api.active(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "ping":
		resp, err := api.ping(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "connect-all":
		resp, err := api.connectAll(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "reconnect":
		resp, err := api.reconnect(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "update-config":
		sub := newNumberFlags("update-config")
		_ = sub.fs.Parse(rest)
		if *sub.number == "" {
			fmt.Fprintln(os.Stderr, "need -n")
			os.Exit(1)
		}
		settings, err := parseSettings(sub.fs.Args())
		if err != nil {
			fail(err)
		}
		if len(settings) == 0 {
			fmt.Fprintln(os.Stderr, "need at least one KEY=VALUE setting")
			os.Exit(1)
		}
		resp, err := api.updateConfig(ctx, *sub.number, settings)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "verify-otp":
		sub := newNumberFlags("verify-otp")
		otp := sub.fs.String("otp", "", "one-time code")
		_ = sub.fs.Parse(rest)
		if *sub.number == "" || *otp == "" {
			fmt.Fprintln(os.Stderr, "need -n and -otp")
			os.Exit(1)
		}
		resp, err := api.verifyOTP(ctx, *sub.number, *otp)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	case "getabout":
		sub := newNumberFlags("getabout")
		target := sub.fs.String("t", "", "target number")
		_ = sub.fs.Parse(rest)
		if *sub.number == "" || *target == "" {
			fmt.Fprintln(os.Stderr, "need -n and -t")
			os.Exit(1)
		}
		resp, err := api.getAbout(ctx, *sub.number, *target)
		if err != nil {
			fail(err)
		}
		printJSON(resp)

	default:
		usage()
	}
}
