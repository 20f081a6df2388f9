package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

func registerACLCommands() {
	commands.Register(&Command{
		Name:        "acl",
		Aliases:     []string{"getacl", "permissions"},
		Description: "Show file/directory security descriptor",
		Usage:       "acl <path>",
		Handler:     cmdAcl,
	})
}

// cmdAcl displays the security descriptor for a file or directory
func cmdAcl(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}

	path := currentPath
	if len(args) > 0 {
		path = resolvePath(args[0])
	}

	info_("Reading security descriptor for: %s", remotePath(path))

	sd, err := currentTree.SecurityDescriptor(ctx, remotePath(path))
	if err != nil {
		return fmt.Errorf("failed to get security descriptor: %w", err)
	}

	fmt.Println()
	fmt.Printf("  %sSecurity Descriptor for %s:%s\n", colorBold, remotePath(path), colorReset)
	fmt.Println("  " + strings.Repeat("-", 60))
	displaySecurityDescriptor(sd)

	return nil
}

// displaySecurityDescriptor prints the owner, group and both ACLs
func displaySecurityDescriptor(sd *trans.SecurityDescriptor) {
	fmt.Printf("  Revision: %d\n", sd.Revision)
	fmt.Printf("  Control:  0x%04X\n", sd.Control)

	if sd.Owner != nil {
		fmt.Printf("  Owner:    %s\n", sidName(*sd.Owner))
	}
	if sd.Group != nil {
		fmt.Printf("  Group:    %s\n", sidName(*sd.Group))
	}

	if sd.DACL != nil {
		fmt.Println()
		fmt.Printf("  %sDACL (Discretionary ACL):%s\n", colorBold, colorReset)
		displayACL(sd.DACL)
	} else {
		fmt.Println()
		fmt.Printf("  %sNo DACL (everyone has full access)%s\n", colorYellow, colorReset)
	}

	if sd.SACL != nil {
		fmt.Println()
		fmt.Printf("  %sSACL (System ACL):%s\n", colorBold, colorReset)
		displayACL(sd.SACL)
	}

	fmt.Println()
}

func displayACL(acl *trans.ACL) {
	fmt.Printf("  ACL Revision: %d, ACE Count: %d\n", acl.Revision, len(acl.Entries))
	for _, ace := range acl.Entries {
		fmt.Printf("    [%s] %s\n", aceTypeToString(ace), sidName(ace.SID))
		if ace.Flags != 0 {
			fmt.Printf("       Flags: %s\n", trans.ACEFlagsString(ace.Flags))
		}
		fmt.Printf("       Access: %s\n", trans.AccessMaskString(ace.Mask))
	}
}

// sidName appends the well-known name to the SID when there is one
func sidName(sid trans.SID) string {
	if name := sid.WellKnownName(); name != "" {
		return fmt.Sprintf("%s (%s)", sid, name)
	}
	return sid.String()
}

func aceTypeToString(ace trans.ACE) string {
	switch ace.Type {
	case trans.ACEAccessAllowed:
		return colorGreen + ace.TypeString() + colorReset
	case trans.ACEAccessDenied:
		return colorRed + ace.TypeString() + colorReset
	default:
		return colorYellow + ace.TypeString() + colorReset
	}
}
