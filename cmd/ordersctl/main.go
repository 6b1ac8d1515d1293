// ordersctl drives the administrative HTTP API of the courier order
// server: listing, statistics, cleanup, persistence control and
// per-order admin actions.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	method string
	path   func(arg string) string
	needs  string // name of the required argument, if any
	help   string
}

var commands = map[string]command{
	"list":     {http.MethodGet, fixed("/admin/orders"), "", "list every stored order"},
	"stats":    {http.MethodGet, fixed("/stats"), "", "show order counts by status"},
	"health":   {http.MethodGet, fixed("/health"), "", "show server and persistence health"},
	"clear":    {http.MethodPost, fixed("/admin/clear"), "", "remove every order"},
	"cleanup":  {http.MethodPost, fixed("/admin/cleanup"), "", "run one expiry sweep"},
	"reload":   {http.MethodPost, fixed("/admin/reload"), "", "reload orders from the snapshot file"},
	"flush":    {http.MethodPost, fixed("/admin/flush"), "", "write the snapshot file now"},
	"delete":   {http.MethodDelete, func(id string) string { return "/admin/orders/" + url.PathEscape(id) }, "ID", "delete one order"},
	"complete": {http.MethodPost, func(id string) string { return "/admin/orders/" + url.PathEscape(id) + "/complete" }, "ID", "force-complete an accepted order"},
	"player":   {http.MethodGet, func(name string) string { return "/orders?owner_name=" + url.QueryEscape(name) }, "NAME", "list orders created by a player"},
}

var commandOrder = []string{"list", "stats", "health", "player", "complete", "delete", "cleanup", "clear", "reload", "flush"}

func fixed(p string) func(string) string { return func(string) string { return p } }

func run(args []string, stdout io.Writer) error {
	var addr string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("ordersctl", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "http://localhost:8080", "base URL of the order server")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stdout, flagSet)
		return fmt.Errorf("missing command")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}
	var arg string
	if cmd.needs != "" {
		if len(rest) < 2 || rest[1] == "" {
			return fmt.Errorf("%s requires %s", rest[0], cmd.needs)
		}
		arg = rest[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return call(ctx, strings.TrimRight(addr, "/")+cmd.path(arg), cmd.method, stdout)
}

func call(ctx context.Context, target, method string, stdout io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, target, resp.Status, strings.TrimSpace(string(body)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		_, err = stdout.Write(body)
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(stdout)
	return err
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: ordersctl [flags] COMMAND [ARG]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		label := name
		if cmd.needs != "" {
			label += " " + cmd.needs
		}
		fmt.Fprintf(w, "  %-14s %s\n", label, cmd.help)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
}
