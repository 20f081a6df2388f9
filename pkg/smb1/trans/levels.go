package trans

import "github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"

// Trans2 sub-commands
const (
	Trans2FindFirst2           uint16 = 0x0001
	Trans2FindNext2            uint16 = 0x0002
	Trans2QueryFSInformation   uint16 = 0x0003
	Trans2QueryPathInformation uint16 = 0x0005
	Trans2QueryFileInformation uint16 = 0x0007
	Trans2SetFileInformation   uint16 = 0x0008
	Trans2GetDfsReferral       uint16 = 0x0010
)

// NT Trans functions
const (
	NTTransNotifyChange      uint16 = 0x0004
	NTTransQuerySecurityDesc uint16 = 0x0006
)

// Trans (named pipe) sub-commands
const (
	TransPeekNamedPipe     uint16 = 0x0023
	TransTransactNamedPipe uint16 = 0x0026
	TransWaitNamedPipe     uint16 = 0x0053
	TransCallNamedPipe     uint16 = 0x0054
)

// RAP API numbers carried over \PIPE\LANMAN
const (
	RAPNetShareEnum   uint16 = 0x0000
	RAPNetServerEnum2 uint16 = 0x0068
	RAPNetServerEnum3 uint16 = 0x00D7
)

// Find information levels
const (
	LevelFindDirectoryInfo     uint16 = 0x0101
	LevelFindFullDirectoryInfo uint16 = 0x0102
	LevelFindNamesInfo         uint16 = 0x0103
	LevelFindBothDirectoryInfo uint16 = 0x0104
)

// File system information levels
const (
	LevelFSAllocation uint16 = 0x0001
	LevelFSVolume     uint16 = 0x0102
	LevelFSSize       uint16 = 0x0103
	LevelFSAttribute  uint16 = 0x0105
	LevelFSFullSize   uint16 = 1007
)

// File information levels for query path, query file and set file
const (
	LevelQueryBasic          uint16 = 0x0101
	LevelQueryStandard       uint16 = 0x0102
	LevelPassthroughBasic    uint16 = 1004
	LevelPassthroughStandard uint16 = 1005
	LevelPassthroughInternal uint16 = 1006
	LevelSetBasic            uint16 = 0x0101
)

// Kinds of the concrete payloads.
var (
	KindFindFirst2           = Kind{types.CommandTrans2, Trans2FindFirst2}
	KindFindNext2            = Kind{types.CommandTrans2, Trans2FindNext2}
	KindQueryFSInformation   = Kind{types.CommandTrans2, Trans2QueryFSInformation}
	KindQueryPathInformation = Kind{types.CommandTrans2, Trans2QueryPathInformation}
	KindQueryFileInformation = Kind{types.CommandTrans2, Trans2QueryFileInformation}
	KindSetFileInformation   = Kind{types.CommandTrans2, Trans2SetFileInformation}
	KindGetDfsReferral       = Kind{types.CommandTrans2, Trans2GetDfsReferral}
	KindNotifyChange         = Kind{types.CommandNTTrans, NTTransNotifyChange}
	KindQuerySecurityDesc    = Kind{types.CommandNTTrans, NTTransQuerySecurityDesc}
	KindPeekNamedPipe        = Kind{types.CommandTrans, TransPeekNamedPipe}
	KindTransactNamedPipe    = Kind{types.CommandTrans, TransTransactNamedPipe}
	KindWaitNamedPipe        = Kind{types.CommandTrans, TransWaitNamedPipe}
	KindCallNamedPipe        = Kind{types.CommandTrans, TransCallNamedPipe}
	KindNetShareEnum         = Kind{types.CommandTrans, RAPNetShareEnum}
	KindNetServerEnum2       = Kind{types.CommandTrans, RAPNetServerEnum2}
	KindNetServerEnum3       = Kind{types.CommandTrans, RAPNetServerEnum3}
)

// SupportedFSLevels are the file system levels QueryFSInformation decodes.
var SupportedFSLevels = []uint16{LevelFSAllocation, LevelFSVolume, LevelFSSize, LevelFSAttribute, LevelFSFullSize}

// SupportedFindLevels are the levels FindFirst2 and FindNext2 decode.
var SupportedFindLevels = []uint16{LevelFindDirectoryInfo, LevelFindFullDirectoryInfo, LevelFindNamesInfo, LevelFindBothDirectoryInfo}

// SupportedPathLevels are the levels QueryPathInformation and
// QueryFileInformation decode.
var SupportedPathLevels = []uint16{LevelQueryBasic, LevelQueryStandard, LevelPassthroughBasic, LevelPassthroughStandard, LevelPassthroughInternal}
