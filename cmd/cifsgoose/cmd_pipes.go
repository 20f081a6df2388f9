package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ineffectivecoder/cifsgoose/pkg/pipe"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
)

// Raw pipe state for "pipe open/read/write/transact/close"
var (
	openPipe *pipe.Pipe
	pipeTree *smb1.Tree
)

func registerPipeCommands() {
	commands.Register(&Command{
		Name:        "pipes",
		Description: "List/enumerate named pipes",
		Usage:       "pipes [--all]",
		Handler:     cmdPipes,
	})

	commands.Register(&Command{
		Name:        "pipe",
		Description: "Raw named pipe I/O",
		Usage:       "pipe <open <name>|read [n]|write <hex>|transact <hex>|close>",
		Handler:     cmdPipe,
	})

	commands.Register(&Command{
		Name:        "peek",
		Description: "Show bytes waiting on the open pipe",
		Handler:     cmdPeek,
	})

	commands.Register(&Command{
		Name:        "waitpipe",
		Description: "Wait for a free instance of a named pipe",
		Usage:       "waitpipe <name> [timeout]",
		Handler:     cmdWaitPipe,
	})

	commands.Register(&Command{
		Name:        "callpipe",
		Description: "Open, transact and close a named pipe in one request",
		Usage:       "callpipe <name> <hex>",
		Handler:     cmdCallPipe,
	})
}

// withIPCTree runs fn on the current tree if it is IPC$, otherwise on a
// temporary IPC$ connection.
func withIPCTree(ctx context.Context, fn func(*smb1.Tree) error) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}
	if currentTree != nil && currentTree.IsPipe() {
		return fn(currentTree)
	}

	tree, err := client.TreeConnect(ctx, smb1.UNC(targetHost, smb1.IPCShare))
	if err != nil {
		return fmt.Errorf("failed to connect to IPC$: %w", err)
	}
	defer func() {
		if err := tree.Disconnect(ctx); err != nil {
			debug_("disconnect IPC$: %v", err)
		}
	}()
	return fn(tree)
}

func cmdPipes(ctx context.Context, args []string) error {
	all := len(args) > 0 && args[0] == "--all"

	return withIPCTree(ctx, func(tree *smb1.Tree) error {
		if all {
			info_("Listing named pipes on IPC$...")
			names, err := pipe.Enumerate(ctx, tree)
			if err != nil {
				return fmt.Errorf("pipe listing failed: %w", err)
			}
			fmt.Println()
			for _, n := range names {
				fmt.Printf("  %s\n", n)
			}
			fmt.Printf("\n  %d pipe(s)\n\n", len(names))
			return nil
		}

		info_("Checking common named pipes on IPC$...")
		fmt.Println()
		statuses := pipe.EnumerateCommonWithStatus(ctx, tree)

		fmt.Printf("  %s%-14s %-32s %s%s\n", colorBold, "PIPE", "SERVICE", "STATUS", colorReset)
		fmt.Println("  " + strings.Repeat("-", 62))

		available := 0
		accessDenied := 0
		for _, s := range statuses {
			var statusStr string
			switch s.Status {
			case pipe.StatusAvailable:
				statusStr = colorGreen + "Available" + colorReset
				available++
			case pipe.StatusAccessDenied:
				statusStr = colorYellow + "Access Denied" + colorReset
				accessDenied++
			case pipe.StatusBusy:
				statusStr = colorYellow + "Busy" + colorReset
				available++
			case pipe.StatusNotFound:
				statusStr = colorRed + "Not Found" + colorReset
			default:
				// Show actual error for debugging
				if s.Error != nil {
					statusStr = colorRed + "Error: " + s.Error.Error() + colorReset
				} else {
					statusStr = colorRed + "Error" + colorReset
				}
			}

			fmt.Printf("  %-14s %-32s %s\n", s.Name, s.Service, statusStr)
		}

		fmt.Println()
		if available > 0 {
			fmt.Printf("  %s%d%s pipe(s) accessible\n", colorGreen, available, colorReset)
		}
		if accessDenied > 0 {
			fmt.Printf("  %s%d%s pipe(s) access denied (may exist but need higher privileges)\n", colorYellow, accessDenied, colorReset)
		}
		fmt.Println()
		return nil
	})
}

func cmdPipe(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pipe <open <name>|read [n]|write <hex>|transact <hex>|close>")
	}

	switch strings.ToLower(args[0]) {
	case "open":
		if len(args) < 2 {
			return fmt.Errorf("usage: pipe open <name>")
		}
		return pipeOpen(ctx, args[1])
	case "close":
		return pipeClose(ctx)
	}

	if openPipe == nil {
		return fmt.Errorf("no pipe open (use 'pipe open <name>' first)")
	}

	switch strings.ToLower(args[0]) {
	case "read":
		n := client.MaxBufferSize()
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid length: %s", args[1])
			}
			n = v
		}
		data, more, err := openPipe.Read(ctx, n)
		if err != nil {
			return err
		}
		printHex(data)
		if more {
			info_("Message continues; read again for the rest")
		}
		return nil

	case "write":
		data, err := hexArg(args[1:])
		if err != nil {
			return err
		}
		n, err := openPipe.Write(ctx, data)
		if err != nil {
			return err
		}
		success_("Wrote %d byte(s)", n)
		return nil

	case "transact":
		data, err := hexArg(args[1:])
		if err != nil {
			return err
		}
		reply, err := openPipe.Transact(ctx, data)
		if err != nil {
			return err
		}
		printHex(reply)
		return nil

	default:
		return fmt.Errorf("unknown pipe action: %s", args[0])
	}
}

func pipeOpen(ctx context.Context, name string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}
	if openPipe != nil {
		if err := pipeClose(ctx); err != nil {
			debug_("close previous pipe: %v", err)
		}
	}

	tree := currentTree
	if tree == nil || !tree.IsPipe() {
		var err error
		tree, err = client.TreeConnect(ctx, smb1.UNC(targetHost, smb1.IPCShare))
		if err != nil {
			return fmt.Errorf("failed to connect to IPC$: %w", err)
		}
		pipeTree = tree
	}

	p, err := pipe.Open(ctx, tree, name)
	if err != nil {
		if pipeTree != nil {
			pipeTree.Disconnect(ctx)
			pipeTree = nil
		}
		return err
	}
	openPipe = p
	success_("Opened pipe %s", name)
	return nil
}

func pipeClose(ctx context.Context) error {
	if openPipe == nil {
		return fmt.Errorf("no pipe open")
	}
	name := openPipe.Name()
	err := openPipe.Close(ctx)
	openPipe = nil
	if pipeTree != nil {
		if derr := pipeTree.Disconnect(ctx); derr != nil {
			debug_("disconnect IPC$: %v", derr)
		}
		pipeTree = nil
	}
	if err != nil {
		return err
	}
	success_("Closed pipe %s", name)
	return nil
}

func cmdPeek(ctx context.Context, args []string) error {
	if openPipe == nil {
		return fmt.Errorf("no pipe open (use 'pipe open <name>' first)")
	}
	p, err := openPipe.Peek(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n  Available:     %d bytes\n", p.Available)
	fmt.Printf("  Message bytes: %d\n", p.MessageBytes)
	fmt.Printf("  State:         %s\n\n", pipeState(p.State))
	return nil
}

func cmdWaitPipe(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: waitpipe <name> [timeout]")
	}
	timeout := 5 * time.Second
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = d
	}

	return withIPCTree(ctx, func(tree *smb1.Tree) error {
		info_("Waiting up to %s for %s...", timeout, args[0])
		if err := tree.WaitPipe(ctx, args[0], timeout); err != nil {
			return err
		}
		success_("Pipe %s has a free instance", args[0])
		return nil
	})
}

func cmdCallPipe(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: callpipe <name> <hex>")
	}
	data, err := hexArg(args[1:])
	if err != nil {
		return err
	}
	return withIPCTree(ctx, func(tree *smb1.Tree) error {
		reply, err := pipe.Call(ctx, tree, args[0], data)
		if err != nil {
			return err
		}
		printHex(reply)
		return nil
	})
}

// pipeState names the NamedPipeState value of a peek
func pipeState(state uint16) string {
	switch state {
	case 1:
		return "disconnected"
	case 2:
		return "listening"
	case 3:
		return "connected"
	case 4:
		return "closing"
	default:
		return fmt.Sprintf("%d", state)
	}
}

// hexArg joins args and decodes them as hex, ignoring spaces and colons
func hexArg(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing hex data")
	}
	s := strings.NewReplacer(" ", "", ":", "").Replace(strings.Join(args, ""))
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

func printHex(data []byte) {
	if len(data) == 0 {
		info_("(no data)")
		return
	}
	fmt.Println()
	fmt.Print(hex.Dump(data))
	fmt.Printf("\n  %d byte(s)\n\n", len(data))
}
