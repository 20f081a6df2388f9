package pipe

import (
	"context"
	"errors"
	"slices"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

// Pipe names under \PIPE\ on IPC$.
const (
	PipeLanman   = "LANMAN"
	PipeSrvsvc   = "srvsvc"
	PipeWkssvc   = "wkssvc"
	PipeBrowser  = "browser"
	PipeSamr     = "samr"
	PipeLsarpc   = "lsarpc"
	PipeNetlogon = "netlogon"
	PipeWinreg   = "winreg"
	PipeSvcctl   = "svcctl"
	PipeAtsvc    = "atsvc"
	PipeSpoolss  = "spoolss"
	PipeNetdfs   = "netdfs"
	PipeEfsrpc   = "efsrpc"
	PipeEpmapper = "epmapper"
	PipeFssagent = "FssagentRpc"
)

// Known is a pipe an SMB1 server commonly exposes.
type Known struct {
	Name    string
	Service string
	// RAP pipes only take named Trans requests; they cannot be opened.
	RAP bool
}

// KnownPipes is checked in order by EnumerateCommon.
var KnownPipes = []Known{
	{PipeLanman, "LAN Manager remote administration", true},

	// browsing and server administration
	{PipeSrvsvc, "Server service", false},
	{PipeWkssvc, "Workstation service", false},
	{PipeBrowser, "Computer browser", false},

	// accounts and domain trust
	{PipeSamr, "SAM remote", false},
	{PipeLsarpc, "LSA remote", false},
	{PipeNetlogon, "Netlogon", false},

	// host services
	{PipeWinreg, "Remote registry", false},
	{PipeSvcctl, "Service control manager", false},
	{PipeAtsvc, "Task scheduler", false},
	{PipeSpoolss, "Print spooler", false},
	{PipeNetdfs, "DFS namespace", false},
	{PipeEfsrpc, "Encrypting file system", false},
	{PipeFssagent, "File share shadow copy agent", false},
	{PipeEpmapper, "Endpoint mapper", false},
}

// CommonPipes returns the names of the known pipes that can be opened.
func CommonPipes() []string {
	var names []string
	for _, k := range KnownPipes {
		if !k.RAP {
			names = append(names, k.Name)
		}
	}
	return names
}

// Service describes name, or returns "" for an unknown pipe.
func Service(name string) string {
	i := slices.IndexFunc(KnownPipes, func(k Known) bool { return k.Name == name })
	if i < 0 {
		return ""
	}
	return KnownPipes[i].Service
}

// Enumerate lists the pipe names on an IPC$ tree, sorted. Only servers that
// allow searching IPC$ answer; Windows usually does not.
func Enumerate(ctx context.Context, tree *smb1.Tree) ([]string, error) {
	files, err := tree.ListLevel(ctx, `\*`, trans.LevelFindNamesInfo)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return names, nil
}

// PipeStatus is the outcome of opening one pipe.
type PipeStatus struct {
	Name    string
	Service string
	Status  string
	Error   error
}

// PipeStatus.Status values
const (
	StatusAvailable    = "available"
	StatusAccessDenied = "access_denied"
	StatusNotFound     = "not_found"
	StatusBusy         = "busy"
	StatusError        = "error"
)

// CheckPipe reports whether name opens.
func CheckPipe(ctx context.Context, tree *smb1.Tree, name string) bool {
	return CheckPipeWithStatus(ctx, tree, name).Status == StatusAvailable
}

// CheckPipeWithStatus opens and closes name and classifies the result.
func CheckPipeWithStatus(ctx context.Context, tree *smb1.Tree, name string) PipeStatus {
	st := PipeStatus{Name: name, Service: Service(name)}
	p, err := Open(ctx, tree, name)
	switch {
	case err == nil:
		st.Status = StatusAvailable
		p.Close(ctx)
	case errors.Is(err, smb1.ErrAccessDenied):
		st.Status = StatusAccessDenied
	case errors.Is(err, smb1.ErrNotFound), errors.Is(err, smb1.ErrBadNetworkName):
		st.Status = StatusNotFound
	case errors.Is(err, smb1.ErrPipeBusy):
		st.Status = StatusBusy
	default:
		st.Status = StatusError
	}
	if err != nil {
		st.Error = err
	}
	return st
}

// EnumerateCommon returns the common pipes that open.
func EnumerateCommon(ctx context.Context, tree *smb1.Tree) []string {
	var available []string
	for _, st := range EnumerateCommonWithStatus(ctx, tree) {
		if st.Status == StatusAvailable {
			available = append(available, st.Name)
		}
	}
	return available
}

// EnumerateCommonWithStatus checks every common pipe.
func EnumerateCommonWithStatus(ctx context.Context, tree *smb1.Tree) []PipeStatus {
	var statuses []PipeStatus
	for _, name := range CommonPipes() {
		statuses = append(statuses, CheckPipeWithStatus(ctx, tree, name))
	}
	return statuses
}
