package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

func registerShareCommands() {
	commands.Register(&Command{
		Name:        "shares",
		Description: "List shares (NetShareEnum)",
		Usage:       "shares",
		Handler:     cmdShares,
	})

	commands.Register(&Command{
		Name:        "servers",
		Description: "List servers known to the browser (NetServerEnum2)",
		Usage:       "servers [domain] [-d]",
		Handler:     cmdServers,
	})

	commands.Register(&Command{
		Name:        "use",
		Aliases:     []string{"connect"},
		Description: "Connect to a share",
		Usage:       "use <sharename>",
		Handler:     cmdUse,
	})

	commands.Register(&Command{
		Name:        "disconnect",
		Aliases:     []string{"disc"},
		Description: "Disconnect from current share",
		Handler:     cmdDisconnect,
	})

	commands.Register(&Command{
		Name:        "df",
		Description: "Show volume size and file system",
		Handler:     cmdDf,
	})
}

func cmdShares(ctx context.Context, args []string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}

	info_("Enumerating shares on %s...", targetHost)
	shares, err := client.ListShares(ctx, targetHost)
	if err != nil {
		return err
	}

	sort.Slice(shares, func(i, j int) bool {
		return strings.ToLower(shares[i].Name) < strings.ToLower(shares[j].Name)
	})

	fmt.Println()
	knownShares = knownShares[:0]
	for _, s := range shares {
		knownShares = append(knownShares, s.Name)
		color := colorGreen
		if s.Hidden() {
			color = colorYellow
		}
		fmt.Printf("  %s%-15s%s [%-7s] %s\n", color, s.Name, colorReset, s.TypeString(), s.Remark)
	}
	fmt.Println()

	if len(shares) == 0 {
		warn_("No shares found")
	} else {
		success_("Found %d share(s)", len(shares))
	}

	return nil
}

func cmdServers(ctx context.Context, args []string) error {
	if client == nil {
		return fmt.Errorf("not connected")
	}

	domain := ""
	serverTypes := trans.SVTypeAll
	for _, a := range args {
		if a == "-d" {
			serverTypes = trans.SVTypeDomainEnum
			continue
		}
		domain = a
	}

	if serverTypes == trans.SVTypeDomainEnum {
		info_("Enumerating domains via %s...", targetHost)
	} else {
		info_("Enumerating servers via %s...", targetHost)
	}
	servers, err := client.ListServers(ctx, targetHost, domain, serverTypes)
	if err != nil {
		if smb1.IsRAPError(err) {
			warn_("The browser service rejected the request")
		}
		return err
	}

	fmt.Println()
	for _, s := range servers {
		fmt.Printf("  %s%-16s%s %d.%d  %-10s %s\n", colorGreen, s.Name, colorReset,
			s.VersionMajor, s.VersionMinor, serverRole(s.Type), s.Comment)
	}
	fmt.Println()
	success_("Found %d entr(y/ies)", len(servers))

	return nil
}

// serverRole picks the most telling role bit of a browser entry
func serverRole(t uint32) string {
	switch {
	case t&trans.SVTypeDomainEnum != 0:
		return "domain"
	case t&trans.SVTypeDomainCtrl != 0:
		return "dc"
	case t&trans.SVTypeServer != 0:
		return "server"
	case t&trans.SVTypeWorkstation != 0:
		return "workstation"
	default:
		return fmt.Sprintf("0x%08X", t)
	}
}

func cmdUse(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: use <sharename>")
	}

	if client == nil {
		return fmt.Errorf("not connected")
	}

	share := args[0]

	// Disconnect from current share if any
	if currentTree != nil {
		if err := currentTree.Disconnect(ctx); err != nil {
			debug_("disconnect %s: %v", currentTree.Share, err)
		}
		currentTree = nil
		currentPath = ""
	}

	info_("Connecting to %s...", smb1.UNC(targetHost, share))

	tree, err := client.TreeConnect(ctx, smb1.UNC(targetHost, share))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	currentTree = tree
	currentPath = ""

	success_("Connected to %s (%s share)", share, serviceName(tree.Service))

	return nil
}

func cmdDisconnect(ctx context.Context, args []string) error {
	if currentTree == nil {
		return fmt.Errorf("not connected to any share")
	}

	name := shareName(currentTree)
	err := currentTree.Disconnect(ctx)
	currentTree = nil
	currentPath = ""
	if err != nil {
		return err
	}

	success_("Disconnected from %s", name)

	return nil
}

func cmdDf(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}

	size, err := currentTree.DiskInfo(ctx, trans.LevelFSFullSize)
	if err != nil {
		// pre-NT servers lack the passthrough level
		debug_("full size info: %v", err)
		if size, err = currentTree.DiskInfo(ctx, trans.LevelFSSize); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Printf("  Total:        %s\n", formatSize(size.Capacity()))
	fmt.Printf("  Free:         %s\n", formatSize(size.Free()))
	if caller := size.CallerFreeUnits * uint64(size.SectorsPerUnit) * uint64(size.BytesPerSector); caller != size.Free() {
		fmt.Printf("  Caller Free:  %s\n", formatSize(caller))
	}

	if vol, err := currentTree.DiskInfo(ctx, trans.LevelFSVolume); err == nil {
		fmt.Printf("  Label:        %s\n", vol.Label)
		fmt.Printf("  Serial:       %04X-%04X\n", vol.SerialNumber>>16, vol.SerialNumber&0xFFFF)
	} else {
		debug_("volume info: %v", err)
	}
	if attr, err := currentTree.DiskInfo(ctx, trans.LevelFSAttribute); err == nil {
		fmt.Printf("  File System:  %s\n", attr.FileSystemName)
		fmt.Printf("  Max Name:     %d\n", attr.MaxNameLength)
	} else {
		debug_("attribute info: %v", err)
	}
	fmt.Println()

	return nil
}

func registerFileCommands() {
	commands.Register(&Command{
		Name:        "ls",
		Aliases:     []string{"dir"},
		Description: "List directory contents",
		Usage:       "ls [path]",
		Handler:     cmdLs,
	})

	commands.Register(&Command{
		Name:        "cd",
		Description: "Change directory",
		Usage:       "cd <path>",
		Handler:     cmdCd,
	})

	commands.Register(&Command{
		Name:        "pwd",
		Description: "Print working directory",
		Handler:     cmdPwd,
	})

	commands.Register(&Command{
		Name:        "cat",
		Aliases:     []string{"type"},
		Description: "Display file contents",
		Usage:       "cat <file>",
		Handler:     cmdCat,
	})

	commands.Register(&Command{
		Name:        "stat",
		Description: "Show file times, attributes and sizes",
		Usage:       "stat <path>",
		Handler:     cmdStat,
	})

	commands.Register(&Command{
		Name:        "touch",
		Description: "Set file times (creates the file if missing)",
		Usage:       "touch <file> [YYYY-MM-DD HH:MM:SS]",
		Handler:     cmdTouch,
	})

	commands.Register(&Command{
		Name:        "watch",
		Description: "Wait for a change in a directory",
		Usage:       "watch [-r] [path]",
		Handler:     cmdWatch,
	})
}

func requireDiskTree() error {
	if currentTree == nil {
		return fmt.Errorf("not connected to a share (use 'use <share>' first)")
	}
	// IPC$ shares don't support file operations
	if currentTree.IsPipe() {
		return fmt.Errorf("IPC$ shares don't support file operations. Use the pipe commands instead")
	}
	return nil
}

func cmdLs(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}

	path := currentPath
	if len(args) > 0 {
		path = resolvePath(args[0])
	}

	files, err := currentTree.List(ctx, searchPattern(path))
	if err != nil {
		return fmt.Errorf("failed to list: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir() != files[j].IsDir() {
			return files[i].IsDir()
		}
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})

	fmt.Println()
	for _, f := range files {
		attrs := ""
		if f.IsDir() {
			attrs = colorBlue + "DIR " + colorReset
		} else {
			attrs = "    "
		}

		sizeStr := formatSize(f.EndOfFile)
		timeStr := f.LastWrite.Format("2006-01-02 15:04")

		name := f.Name
		if f.IsDir() {
			name = colorBlue + name + "\\" + colorReset
		}

		fmt.Printf("  %s %10s  %s  %s\n", attrs, sizeStr, timeStr, name)
	}
	fmt.Printf("\n  %d item(s)\n\n", len(files))

	return nil
}

func cmdCd(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}

	if len(args) < 1 {
		currentPath = ""
		return nil
	}

	newPath := resolvePath(args[0])
	if newPath != "" {
		info, err := currentTree.Stat(ctx, remotePath(newPath), trans.LevelQueryStandard)
		if err != nil {
			return fmt.Errorf("cannot access: %w", err)
		}
		if !info.Standard.Directory {
			return fmt.Errorf("not a directory: %s", newPath)
		}
	}

	currentPath = newPath
	return nil
}

func cmdPwd(ctx context.Context, args []string) error {
	if currentTree == nil {
		return fmt.Errorf("not connected to a share")
	}

	path := currentTree.Share
	if currentPath != "" {
		path += "\\" + currentPath
	}
	fmt.Println(path)
	return nil
}

func cmdCat(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: cat <file>")
	}

	path := resolvePath(args[0])

	file, err := currentTree.Open(ctx, remotePath(path), smb1.ReadOnly)
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	defer file.Close(ctx)

	if file.Directory {
		return fmt.Errorf("is a directory: %s", path)
	}

	// Read in chunks
	for off := uint64(0); off < file.Size; {
		data, _, err := file.ReadAt(ctx, off, client.MaxBufferSize())
		if err != nil {
			return err
		}
		if len(data) == 0 {
			break
		}
		fmt.Print(string(data))
		off += uint64(len(data))
	}
	fmt.Println()

	return nil
}

func cmdStat(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}

	path := currentPath
	if len(args) > 0 {
		path = resolvePath(args[0])
	}

	basic, err := currentTree.Stat(ctx, remotePath(path), trans.LevelQueryBasic)
	if err != nil {
		return err
	}
	std, err := currentTree.Stat(ctx, remotePath(path), trans.LevelQueryStandard)
	if err != nil {
		return err
	}

	const layout = "2006-01-02 15:04:05 MST"
	fmt.Println()
	fmt.Printf("  %sPath:%s         %s\n", colorBold, colorReset, remotePath(path))
	fmt.Printf("  Created:      %s\n", basic.Basic.Created.Format(layout))
	fmt.Printf("  Accessed:     %s\n", basic.Basic.LastAccess.Format(layout))
	fmt.Printf("  Modified:     %s\n", basic.Basic.LastWrite.Format(layout))
	fmt.Printf("  Changed:      %s\n", basic.Basic.Changed.Format(layout))
	fmt.Printf("  Attributes:   %s\n", attributesString(basic.Basic.Attributes))
	fmt.Printf("  Size:         %s (%d bytes)\n", formatSize(std.Standard.EndOfFile), std.Standard.EndOfFile)
	fmt.Printf("  Allocated:    %s\n", formatSize(std.Standard.AllocationSize))
	fmt.Printf("  Links:        %d\n", std.Standard.Links)
	fmt.Printf("  Directory:    %v\n", std.Standard.Directory)
	if std.Standard.DeletePending {
		fmt.Printf("  %sDelete pending%s\n", colorYellow, colorReset)
	}
	fmt.Println()

	return nil
}

func cmdTouch(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: touch <file> [YYYY-MM-DD HH:MM:SS]")
	}

	when := time.Now()
	if len(args) > 1 {
		t, err := time.ParseInLocation("2006-01-02 15:04:05", strings.Join(args[1:], " "), time.Local)
		if err != nil {
			return fmt.Errorf("invalid time: %w", err)
		}
		when = t
	}

	path := resolvePath(args[0])
	file, err := currentTree.Open(ctx, remotePath(path), smb1.OpenOptions{
		Access:      smb1.FileReadAttributes | smb1.FileWriteAttributes | smb1.FileWriteData,
		ShareAccess: smb1.FileShareRead | smb1.FileShareWrite | smb1.FileShareDelete,
		Disposition: smb1.FileOpenIf,
		Attributes:  smb1.AttrNormal,
	})
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	defer file.Close(ctx)

	if err := file.SetTimes(ctx, time.Time{}, when, when, 0); err != nil {
		return err
	}
	success_("Set times of %s to %s", path, when.Format("2006-01-02 15:04:05"))
	return nil
}

func cmdWatch(ctx context.Context, args []string) error {
	if err := requireDiskTree(); err != nil {
		return err
	}

	recursive := false
	path := currentPath
	for _, a := range args {
		if a == "-r" {
			recursive = true
			continue
		}
		path = resolvePath(a)
	}

	info_("Watching %s (recursive: %v)...", remotePath(path), recursive)
	changes, err := currentTree.WatchDirectory(ctx, remotePath(path), recursive)
	if err != nil {
		if errors.Is(err, smb1.ErrAccessDenied) {
			warn_("Directory needs list access to be watched")
		}
		return err
	}
	if len(changes) == 0 {
		warn_("Too many changes to report; list the directory again")
		return nil
	}

	for _, c := range changes {
		fmt.Printf("  %-13s %s\n", c.ActionString(), c.FileName)
	}
	return nil
}

// attributesString renders DOS attribute letters
func attributesString(attrs uint32) string {
	flags := []struct {
		bit  uint32
		char byte
	}{
		{smb1.AttrDirectory, 'D'},
		{smb1.AttrReadOnly, 'R'},
		{smb1.AttrHidden, 'H'},
		{smb1.AttrSystem, 'S'},
		{smb1.AttrArchive, 'A'},
	}
	var sb strings.Builder
	for _, f := range flags {
		if attrs&f.bit != 0 {
			sb.WriteByte(f.char)
		} else {
			sb.WriteByte('-')
		}
	}
	return fmt.Sprintf("%s (0x%08X)", sb.String(), attrs)
}

// Path utilities

// resolvePath joins path to the current directory and folds "." and ".."
// The result has no leading backslash.
func resolvePath(path string) string {
	path = strings.ReplaceAll(path, "/", "\\")

	// Strip drive letter if present (e.g., C:\Windows -> Windows)
	if len(path) >= 2 && path[1] == ':' {
		path = path[2:]
	}

	var parts []string
	if !strings.HasPrefix(path, "\\") && currentPath != "" {
		parts = strings.Split(currentPath, "\\")
	}
	for _, p := range strings.Split(path, "\\") {
		switch p {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\\")
}

// remotePath returns the share-relative form the server expects.
func remotePath(path string) string {
	return "\\" + path
}

// searchPattern matches everything in the directory path.
func searchPattern(path string) string {
	if path == "" {
		return "\\*"
	}
	return remotePath(path) + "\\*"
}

func formatSize(size uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case size >= TB:
		return fmt.Sprintf("%.1f TB", float64(size)/TB)
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
