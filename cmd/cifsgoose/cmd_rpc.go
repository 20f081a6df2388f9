package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/pkg/dcerpc"
	"github.com/ineffectivecoder/cifsgoose/pkg/pipe"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
)

// Bound RPC state for "rpc bind/call"
var (
	rpcClient *dcerpc.Client
	rpcPipe   *pipe.Pipe
	rpcTree   *smb1.Tree
)

func registerRPCCommands() {
	commands.Register(&Command{
		Name:        "rpc",
		Description: "DCE/RPC over a named pipe (opaque stubs)",
		Usage:       "rpc <interfaces|bind <pipe> <iface|uuid[:maj.min]>|call <opnum> [hex]|status|close>",
		Handler:     cmdRPC,
	})
}

func cmdRPC(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Println("\nRPC subcommands:")
		fmt.Println("  interfaces    List known RPC interfaces")
		fmt.Println("  bind          Bind to an interface on a pipe")
		fmt.Println("  call          Call an opnum with a hex stub")
		fmt.Println("  status        Show current RPC binding")
		fmt.Println("  close         Close the bound pipe")
		fmt.Println()
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "interfaces", "list":
		fmt.Println()
		fmt.Printf("  %s%-10s %-44s %s%s\n", colorBold, "NAME", "SYNTAX", "PIPE", colorReset)
		fmt.Println("  " + strings.Repeat("-", 66))
		for _, iface := range dcerpc.WellKnownInterfaces {
			fmt.Printf("  %-10s %-44s %s\n", iface.Name, iface.Syntax, iface.Pipe)
		}
		fmt.Println()
		return nil
	case "bind":
		return cmdRPCBind(ctx, args[1:])
	case "call":
		return cmdRPCCall(ctx, args[1:])
	case "status":
		if rpcClient == nil {
			info_("Not bound")
			return nil
		}
		xmit, recv := rpcClient.MaxFrag()
		fmt.Printf("\n  Pipe:      %s\n", rpcPipe.Name())
		fmt.Printf("  Interface: %s\n", rpcClient.Interface())
		fmt.Printf("  Max frag:  xmit %d, recv %d\n\n", xmit, recv)
		return nil
	case "close":
		return rpcClose(ctx)
	default:
		return fmt.Errorf("unknown subcommand: %s (use 'rpc' for help)", args[0])
	}
}

func cmdRPCBind(ctx context.Context, args []string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: rpc bind <pipe> <iface|uuid[:maj.min]>")
	}

	// "rpc bind srvs" picks the interface's usual pipe
	var name string
	var syntax dcerpc.SyntaxID
	if len(args) == 1 {
		iface := dcerpc.LookupInterface(args[0])
		if iface == nil {
			return fmt.Errorf("usage: rpc bind <pipe> <iface|uuid[:maj.min]>")
		}
		name, syntax = iface.Pipe, iface.Syntax
	} else {
		name = args[0]
		if iface := dcerpc.LookupInterface(args[1]); iface != nil {
			syntax = iface.Syntax
		} else {
			s, err := dcerpc.ParseSyntax(args[1])
			if err != nil {
				return fmt.Errorf("unknown interface %q: %w", args[1], err)
			}
			syntax = s
		}
	}

	if rpcClient != nil {
		if err := rpcClose(ctx); err != nil {
			debug_("close previous binding: %v", err)
		}
	}

	tree := currentTree
	if tree == nil || !tree.IsPipe() {
		var err error
		tree, err = client.TreeConnect(ctx, smb1.UNC(targetHost, smb1.IPCShare))
		if err != nil {
			return fmt.Errorf("failed to connect to IPC$: %w", err)
		}
		rpcTree = tree
	}

	p, err := pipe.Open(ctx, tree, name)
	if err == nil {
		c := dcerpc.NewClient(p)
		if err = c.Bind(ctx, syntax); err == nil {
			rpcClient, rpcPipe = c, p
			success_("Bound %s on \\PIPE\\%s", syntax, name)
			return nil
		}
		p.Close(ctx)
	}
	if rpcTree != nil {
		rpcTree.Disconnect(ctx)
		rpcTree = nil
	}
	return err
}

func cmdRPCCall(ctx context.Context, args []string) error {
	if rpcClient == nil {
		return fmt.Errorf("not bound (use 'rpc bind' first)")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: rpc call <opnum> [hex]")
	}
	opnum, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid opnum: %s", args[0])
	}
	var stub []byte
	if len(args) > 1 {
		if stub, err = hexArg(args[1:]); err != nil {
			return err
		}
	}

	out, err := rpcClient.Call(ctx, uint16(opnum), stub)
	var fault *dcerpc.FaultError
	if errors.As(err, &fault) {
		warn_("%v", fault)
		return nil
	}
	if err != nil {
		return err
	}
	printHex(out)
	return nil
}

func rpcClose(ctx context.Context) error {
	if rpcClient == nil {
		return fmt.Errorf("not bound")
	}
	err := rpcPipe.Close(ctx)
	rpcClient, rpcPipe = nil, nil
	if rpcTree != nil {
		if derr := rpcTree.Disconnect(ctx); derr != nil {
			debug_("disconnect IPC$: %v", derr)
		}
		rpcTree = nil
	}
	return err
}
