package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/mjwhitta/cli"
	"golang.org/x/term"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
)

// Version info
const (
	Version = "0.1.0"
	Banner  = "cifsgoose"
)

const gooseBanner = `
        __
     __( o)>   cifsgoose v%s
     \ <_ )    SMB1 / CIFS client
      '---'
`

// Colors for output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Global state
var (
	verbose       bool
	client        *smb1.Client
	logon         *smb1.SessionSetupResponse
	currentTree   *smb1.Tree
	currentPath   string
	targetHost    string
	currentUser   string
	currentDomain string
	knownShares   []string
)

func main() {
	var (
		target     string
		port       int
		username   string
		password   string
		hash       string
		domain     string
		anonymous  bool
		configPath string
		socks5     string
		timeout    string
		oem        string
		pcapPath   string
		execCmd    string
	)

	cli.Align = true
	cli.Banner = "cifsgoose [OPTIONS]"
	cli.Info("SMB1/CIFS client - shares, files, named pipes, DFS and capture decoding")
	cli.Authors = []string{"cifsgoose Team"}

	cli.Flag(&target, "t", "target", "", "Target server IP/hostname")
	cli.Flag(&port, "P", "port", smb1.DefaultPort, "Target port (445 direct, 139 NetBIOS)")
	cli.Flag(&username, "u", "user", "", "Username")
	cli.Flag(&domain, "d", "domain", "", "Domain name")
	cli.Flag(&password, "p", "password", "", "Password")
	cli.Flag(&hash, "H", "hash", "", "NT hash (32 hex chars)")
	cli.Flag(&anonymous, "n", "null", false, "Null session (no credentials)")
	cli.Flag(&configPath, "c", "config", "", "YAML client configuration")
	cli.Flag(&socks5, "s", "socks5", "", "SOCKS5 proxy (e.g., 127.0.0.1:1080 or user:pass@host:port)")
	cli.Flag(&timeout, "timeout", "", "Socket timeout (e.g., 30s)")
	cli.Flag(&oem, "oem", "", "OEM code page for non-Unicode servers (e.g., cp437)")
	cli.Flag(&pcapPath, "r", "read", "", "Decode SMB1 traffic from a pcap/pcapng file and exit")
	cli.Flag(&execCmd, "x", "exec", "", "Execute command(s) and exit (semicolon separated)")
	cli.Flag(&verbose, "v", "verbose", false, "Verbose output")

	cli.Parse()
	debug.Verbose = verbose

	printBanner()

	if pcapPath != "" {
		if err := runCapture(pcapPath); err != nil {
			error_("%v", err)
			os.Exit(1)
		}
		return
	}

	if target == "" {
		error_("Missing target (-t) or capture file (-r)")
		cli.Usage(1)
	}

	cfg := smb1.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = smb1.LoadConfig(configPath); err != nil {
			error_("Failed to load config: %v", err)
			os.Exit(1)
		}
		debug_("Loaded %s", configPath)
	}
	if socks5 != "" {
		if !strings.HasPrefix(socks5, "socks5://") {
			socks5 = "socks5://" + socks5
		}
		cfg.Socks5URL = socks5
		info_("Using SOCKS5 proxy: %s", socks5)
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			error_("Invalid timeout: %v", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}
	if oem != "" {
		cfg.OEMCharset = oem
	}

	creds := smb1.Credentials{User: username, Domain: domain, Password: password}
	switch {
	case anonymous:
		creds = smb1.Credentials{}
	case hash != "":
		h, err := parseHash(hash)
		if err != nil {
			error_("%v", err)
			os.Exit(1)
		}
		creds.Hash = h
	case username != "" && password == "":
		creds.Password = promptPassword()
	}

	targetHost = target
	ctx := context.Background()

	info_("Connecting to %s:%d...", target, port)
	var err error
	client, err = smb1.Connect(ctx, target, port, cfg)
	if err != nil {
		error_("Connection failed: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	neg := client.Negotiated()
	success_("Connected! Dialect: NT LM 0.12 (max buffer %d, unicode %v)", client.MaxBufferSize(), client.Unicode())
	if neg.ServerName != "" || neg.DomainName != "" {
		debug_("Server %s in %s", neg.ServerName, neg.DomainName)
	}
	if neg.SigningRequired() {
		warn_("Server requires signing, which is not supported")
	}

	if creds.Anonymous() {
		info_("Opening null session...")
	} else {
		info_("Authenticating as %s\\%s...", domain, username)
	}
	logon, err = client.SessionSetup(ctx, creds)
	if err != nil {
		error_("Authentication failed: %v", err)
		os.Exit(1)
	}
	currentUser = username
	currentDomain = domain
	if logon.IsGuestLogon() {
		warn_("Logged on as guest")
	} else {
		success_("Authenticated!")
	}

	if execCmd != "" {
		for _, cmd := range strings.Split(execCmd, ";") {
			cmd = strings.TrimSpace(cmd)
			if cmd == "" {
				continue
			}
			args := parseArgs(cmd)
			if len(args) > 0 {
				if !executeCommand(ctx, strings.ToLower(args[0]), args[1:]) {
					break
				}
			}
		}
		return
	}
	runShell(ctx)
}

func printBanner() {
	fmt.Printf(colorCyan+gooseBanner+colorReset, Version)
	fmt.Println()
}

func runShell(ctx context.Context) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          buildPrompt(),
		AutoComplete:    &completer{ctx: ctx},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		error_("Failed to initialize readline: %v", err)
		return
	}
	defer rl.Close()

	for {
		rl.SetPrompt(buildPrompt())
		input, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF || err != nil {
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		args := parseArgs(input)
		if len(args) == 0 {
			continue
		}
		if !executeCommand(ctx, strings.ToLower(args[0]), args[1:]) {
			break
		}
	}
}

// completer adapts completeInput to readline. Candidates are whole words;
// readline wants the suffixes after what was typed.
type completer struct {
	ctx context.Context
}

func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	input := string(line[:pos])
	word := input[strings.LastIndex(input, " ")+1:]

	var out [][]rune
	for _, cand := range completeInput(c.ctx, input) {
		if len(cand) >= len(word) && strings.EqualFold(cand[:len(word)], word) {
			out = append(out, []rune(cand[len(word):]))
		}
	}
	return out, len([]rune(word))
}

// completeInput returns candidates for the last word of input.
func completeInput(ctx context.Context, input string) []string {
	parts := strings.Fields(input)

	if len(parts) == 0 || (len(parts) == 1 && !strings.HasSuffix(input, " ")) {
		prefix := ""
		if len(parts) == 1 {
			prefix = strings.ToLower(parts[0])
		}
		return completeCommands(prefix)
	}

	cmd := strings.ToLower(parts[0])
	pathCommands := map[string]bool{
		"ls": true, "dir": true, "cd": true, "cat": true, "type": true,
		"stat": true, "acl": true, "watch": true, "touch": true,
	}
	if pathCommands[cmd] {
		pathArg := ""
		if len(parts) > 1 && !strings.HasSuffix(input, " ") {
			pathArg = parts[len(parts)-1]
		}
		return completePaths(ctx, pathArg)
	}
	if cmd == "use" {
		return knownShares
	}
	return nil
}

// completeCommands returns command names matching prefix
func completeCommands(prefix string) []string {
	var matches []string
	for _, cmd := range commands.List() {
		if strings.HasPrefix(strings.ToLower(cmd.Name), prefix) {
			matches = append(matches, cmd.Name)
		}
	}
	sort.Strings(matches)
	return matches
}

// completePaths returns entries of the directory pathArg points into. The
// candidates keep the directory part the user typed.
func completePaths(ctx context.Context, pathArg string) []string {
	if currentTree == nil || currentTree.IsPipe() {
		return nil
	}

	dirPart := ""
	if i := strings.LastIndexAny(pathArg, `/\`); i >= 0 {
		dirPart = pathArg[:i+1]
	}
	entries, err := currentTree.List(ctx, searchPattern(resolvePath(dirPart)))
	if err != nil {
		return nil
	}

	var matches []string
	for _, e := range entries {
		name := dirPart + e.Name
		if e.IsDir() {
			name += `\`
		}
		matches = append(matches, name)
	}
	sort.Strings(matches)
	return matches
}

func buildPrompt() string {
	var parts []string
	parts = append(parts, colorBold+"[cifsgoose]"+colorReset)

	if targetHost != "" {
		hostPart := colorCyan + targetHost + colorReset
		if currentTree != nil {
			hostPart += "/" + shareName(currentTree)
			if currentPath != "" {
				hostPart += "/" + currentPath
			}
		}
		parts = append(parts, hostPart)
	}

	return strings.Join(parts, " ") + "> "
}

func parseArgs(line string) []string {
	// Simple arg parsing - splits on spaces, handles quotes
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, r := range line {
		switch {
		case r == '"' || r == '\'':
			if inQuote && r == quoteChar {
				inQuote = false
			} else if !inQuote {
				inQuote = true
				quoteChar = r
			} else {
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

// Output helpers
func info_(format string, args ...interface{}) {
	fmt.Printf(colorCyan+"[*]"+colorReset+" "+format+"\n", args...)
}

func success_(format string, args ...interface{}) {
	fmt.Printf(colorGreen+"[+]"+colorReset+" "+format+"\n", args...)
}

func error_(format string, args ...interface{}) {
	fmt.Printf(colorRed+"[!]"+colorReset+" "+format+"\n", args...)
}

func warn_(format string, args ...interface{}) {
	fmt.Printf(colorYellow+"[-]"+colorReset+" "+format+"\n", args...)
}

func debug_(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(colorBlue+"[D]"+colorReset+" "+format+"\n", args...)
	}
}

func promptPassword() string {
	fmt.Print("Password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Print newline after password entry
	if err != nil {
		error_("Failed to read password: %v", err)
		os.Exit(1)
	}
	return string(passBytes)
}

func parseHash(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	// accept LM:NT
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) != 32 {
		return nil, fmt.Errorf("invalid hash length (expected 32 hex chars)")
	}
	h, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hash: %w", err)
	}
	return h, nil
}
