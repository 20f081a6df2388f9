package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Command represents a shell command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     func(ctx context.Context, args []string) error
}

// CommandRegistry holds all available commands
type CommandRegistry struct {
	commands map[string]*Command
}

// Global command registry
var commands = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command to the registry
func (r *CommandRegistry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.commands[alias] = cmd
	}
}

// Get retrieves a command by name or alias
func (r *CommandRegistry) Get(name string) *Command {
	return r.commands[name]
}

// List returns all unique commands sorted by name
func (r *CommandRegistry) List() []*Command {
	seen := make(map[string]bool)
	var list []*Command

	for _, cmd := range r.commands {
		if !seen[cmd.Name] {
			seen[cmd.Name] = true
			list = append(list, cmd)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	return list
}

// executeCommand runs a command by name
func executeCommand(ctx context.Context, name string, args []string) bool {
	cmd := commands.Get(name)
	if cmd == nil {
		error_("Unknown command: %s (type 'help' for commands)", name)
		return true
	}

	if err := cmd.Handler(ctx, args); err != nil {
		error_("%v", err)
	}

	// Return false if we should exit
	return cmd.Name != "exit"
}

// Initialize all commands
func init() {
	registerCoreCommands()
	registerShareCommands()
	registerFileCommands()
	registerACLCommands()
	registerPipeCommands()
	registerDfsCommands()
	registerRPCCommands()
}

// registerCoreCommands registers basic commands
func registerCoreCommands() {
	commands.Register(&Command{
		Name:        "help",
		Aliases:     []string{"?", "h"},
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     cmdHelp,
	})

	commands.Register(&Command{
		Name:        "exit",
		Aliases:     []string{"quit", "q"},
		Description: "Exit the shell",
		Handler:     cmdExit,
	})

	commands.Register(&Command{
		Name:        "whoami",
		Description: "Show current session info",
		Handler:     cmdWhoami,
	})

	commands.Register(&Command{
		Name:        "info",
		Description: "Show connection info",
		Handler:     cmdInfo,
	})

	commands.Register(&Command{
		Name:        "echo",
		Aliases:     []string{"ping"},
		Description: "Send an SMB echo to the server",
		Usage:       "echo [text]",
		Handler:     cmdEcho,
	})

	commands.Register(&Command{
		Name:        "clear",
		Aliases:     []string{"cls"},
		Description: "Clear the screen",
		Handler:     cmdClear,
	})
}

// Command handlers
func cmdHelp(ctx context.Context, args []string) error {
	if len(args) > 0 {
		// Show help for specific command
		cmd := commands.Get(args[0])
		if cmd == nil {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Printf("\n%s%s%s - %s\n", colorBold, cmd.Name, colorReset, cmd.Description)
		if cmd.Usage != "" {
			fmt.Printf("Usage: %s\n", cmd.Usage)
		}
		if len(cmd.Aliases) > 0 {
			fmt.Printf("Aliases: %s\n", strings.Join(cmd.Aliases, ", "))
		}
		fmt.Println()
		return nil
	}

	// Show all commands grouped by category
	fmt.Println()
	fmt.Printf("%s=== cifsgoose Commands ===%s\n\n", colorBold, colorReset)

	categories := map[string][]string{
		"Core":   {"help", "exit", "whoami", "info", "echo", "clear"},
		"Shares": {"shares", "servers", "use", "disconnect", "df"},
		"Files":  {"ls", "cd", "pwd", "cat", "stat", "acl", "touch", "watch"},
		"Pipes":  {"pipes", "pipe", "callpipe", "peek", "waitpipe", "rpc"},
		"DFS":    {"dfs", "dfsflush"},
	}

	order := []string{"Core", "Shares", "Files", "Pipes", "DFS"}

	for _, cat := range order {
		cmdNames := categories[cat]
		fmt.Printf("%s%s:%s\n", colorCyan, cat, colorReset)
		for _, name := range cmdNames {
			cmd := commands.Get(name)
			if cmd != nil {
				fmt.Printf("  %-12s %s\n", cmd.Name, cmd.Description)
			}
		}
		fmt.Println()
	}

	return nil
}

func cmdExit(ctx context.Context, args []string) error {
	info_("Goodbye!")
	return nil
}

func cmdWhoami(ctx context.Context, args []string) error {
	if client == nil || logon == nil {
		return fmt.Errorf("not connected")
	}

	fmt.Println()
	// Show user identity
	switch {
	case currentUser == "":
		fmt.Printf("  %sLogged in as:%s (null session)\n", colorBold, colorReset)
	case currentDomain != "":
		fmt.Printf("  %sLogged in as:%s %s\\%s\n", colorBold, colorReset, currentDomain, currentUser)
	default:
		fmt.Printf("  %sLogged in as:%s %s\n", colorBold, colorReset, currentUser)
	}

	fmt.Printf("\n%sSession Info:%s\n", colorBold, colorReset)
	fmt.Printf("  UID:          0x%04X\n", client.UID())
	fmt.Printf("  Guest:        %v\n", logon.IsGuestLogon())
	fmt.Printf("  Native OS:    %s\n", logon.NativeOS)
	fmt.Printf("  Native LM:    %s\n", logon.NativeLanMan)
	fmt.Printf("  Domain:       %s\n", logon.PrimaryDomain)
	fmt.Println()

	return nil
}

func cmdInfo(ctx context.Context, args []string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}
	neg := client.Negotiated()

	fmt.Printf("\n%sConnection Info:%s\n", colorBold, colorReset)
	fmt.Printf("  Target:       %s\n", targetHost)
	fmt.Printf("  Dialect:      NT LM 0.12\n")
	if neg != nil {
		fmt.Printf("  Server:       %s\n", neg.ServerName)
		fmt.Printf("  Domain:       %s\n", neg.DomainName)
		fmt.Printf("  Server Time:  %s\n", neg.SystemTime.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("  Max Mpx:      %d\n", neg.MaxMpxCount)
		fmt.Printf("  Signing:      %s\n", signingString(neg))
		fmt.Printf("  Capabilities: %s\n", capabilitiesString(neg.Capabilities))
	}
	fmt.Printf("  Max Buffer:   %d bytes\n", client.MaxBufferSize())
	fmt.Printf("  Unicode:      %v\n", client.Unicode())

	if currentTree != nil {
		fmt.Printf("  Share:        %s\n", shareName(currentTree))
		fmt.Printf("  Share Type:   %s\n", serviceName(currentTree.Service))
		if currentTree.NativeFileSystem != "" {
			fmt.Printf("  File System:  %s\n", currentTree.NativeFileSystem)
		}
	}
	fmt.Println()

	return nil
}

func cmdEcho(ctx context.Context, args []string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}
	data := []byte(strings.Join(args, " "))
	if len(data) == 0 {
		data = []byte("cifsgoose")
	}
	if err := client.Echo(ctx, data); err != nil {
		return err
	}
	success_("Echo reply received")
	return nil
}

func cmdClear(ctx context.Context, args []string) error {
	fmt.Print("\033[H\033[2J")
	return nil
}

// shareName returns the share part of the tree's UNC path
func shareName(t *smb1.Tree) string {
	return t.Share[strings.LastIndex(t.Share, "\\")+1:]
}

// serviceName names a tree connect service string
func serviceName(service string) string {
	switch service {
	case smb1.ServiceDisk:
		return "Disk"
	case smb1.ServicePipe:
		return "IPC (Pipe)"
	case smb1.ServicePrinter:
		return "Printer"
	default:
		return "Unknown (" + service + ")"
	}
}

func signingString(neg *smb1.NegotiateResponse) string {
	switch {
	case neg.SigningRequired():
		return "required"
	case neg.SecurityMode&types.SecuritySignaturesEnable != 0:
		return "enabled"
	default:
		return "disabled"
	}
}

func capabilitiesString(caps uint32) string {
	names := []struct {
		bit  uint32
		name string
	}{
		{types.CapUnicode, "UNICODE"},
		{types.CapLargeFiles, "LARGE_FILES"},
		{types.CapNTSMBs, "NT_SMBS"},
		{types.CapRPCRemoteAPIs, "RPC_REMOTE_APIS"},
		{types.CapNTStatusCodes, "NT_STATUS"},
		{types.CapNTFind, "NT_FIND"},
		{types.CapDFS, "DFS"},
		{types.CapInfoLevelPassth, "INFOLEVEL_PASSTHRU"},
		{types.CapLargeReadX, "LARGE_READX"},
		{types.CapLargeWriteX, "LARGE_WRITEX"},
		{types.CapExtendedSec, "EXTENDED_SECURITY"},
	}
	var out []string
	for _, n := range names {
		if caps&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return fmt.Sprintf("0x%08X", caps)
	}
	return strings.Join(out, " ")
}
