package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

func registerDfsCommands() {
	commands.Register(&Command{
		Name:        "dfs",
		Aliases:     []string{"referral"},
		Description: "Resolve a DFS path to its targets",
		Usage:       "dfs <\\\\domain\\namespace[\\link]>",
		Handler:     cmdDfs,
	})

	commands.Register(&Command{
		Name:        "dfsflush",
		Description: "Forget cached DFS referrals",
		Handler:     cmdDfsFlush,
	})
}

func cmdDfs(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: dfs <\\\\domain\\namespace[\\link]>")
	}
	path := strings.ReplaceAll(args[0], "/", "\\")
	if !strings.HasPrefix(path, "\\") {
		path = "\\" + path
	}

	return withIPCTree(ctx, func(tree *smb1.Tree) error {
		ref, err := tree.DfsReferral(ctx, path)
		if err != nil {
			return err
		}

		consumed := []rune(path)
		if ref.PathConsumed < len(consumed) {
			consumed = consumed[:ref.PathConsumed]
		}

		fmt.Println()
		fmt.Printf("  %sPath consumed:%s %s\n", colorBold, colorReset, string(consumed))
		fmt.Printf("  Flags:         %s\n", referralHeaderFlags(ref.HeaderFlags))
		fmt.Println()
		for i, r := range ref.Referrals {
			fmt.Printf("  %s[%d]%s v%d %s ttl=%ds\n", colorCyan, i, colorReset, r.Version, referralServerType(r.ServerType), r.TTL)
			if r.SpecialName != "" {
				fmt.Printf("       Domain: %s\n", r.SpecialName)
				for _, dc := range r.Expanded {
					fmt.Printf("         %s%s%s\n", colorGreen, dc, colorReset)
				}
				continue
			}
			if r.Path != "" {
				fmt.Printf("       Path:   %s\n", r.Path)
			}
			if r.AlternatePath != "" && r.AlternatePath != r.Path {
				fmt.Printf("       Alt:    %s\n", r.AlternatePath)
			}
			fmt.Printf("       Target: %s%s%s\n", colorGreen, r.Node, colorReset)
		}
		fmt.Printf("\n  %d referral(s)\n\n", len(ref.Referrals))
		return nil
	})
}

func cmdDfsFlush(ctx context.Context, args []string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}
	client.FlushDfs()
	success_("DFS referral cache cleared")
	return nil
}

func referralServerType(t uint16) string {
	if t == 1 {
		return "root"
	}
	return "link"
}

func referralHeaderFlags(f uint32) string {
	var out []string
	if f&trans.ReferralServers != 0 {
		out = append(out, "ROOT_TARGETS")
	}
	if f&trans.ReferralStorageServers != 0 {
		out = append(out, "STORAGE_TARGETS")
	}
	if f&trans.ReferralTargetFailback != 0 {
		out = append(out, "FAILBACK")
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, " ")
}
