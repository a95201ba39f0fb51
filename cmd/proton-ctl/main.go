package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"proton/internal/ipc"
)

const usage = `Usage: proton-ctl [flags] COMMAND [TEXT...]

Commands:
  listen       start listening
  mute         stop listening
  toggle       toggle listening
  say TEXT     run TEXT as a typed command
  help         list the commands the assistant understands
  state        print the assistant state

Flags:
`

func main() {
	socket := cli.StringP("socket", "s", "", "Control socket path (default $PROTON_SOCKET or "+ipc.DefaultSocketPath+")")
	timeout := cli.DurationP("timeout", "t", 30*time.Second, "Reply timeout")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	path := *socket
	if path == "" {
		path = os.Getenv("PROTON_SOCKET")
	}
	if path == "" {
		path = ipc.DefaultSocketPath
	}

	msg := ipc.ControlMessage{Cmd: args[0], Text: strings.Join(args[1:], " ")}
	if msg.Cmd == "say" && msg.Text == "" {
		fmt.Fprintln(os.Stderr, "say needs the text to run")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, path, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "proton-daemon not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Fprintln(os.Stderr, "error:", reply.Error)
		os.Exit(1)
	}
	if reply.Text != "" {
		fmt.Println(reply.Text)
	}
}
