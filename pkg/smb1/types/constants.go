// Package types defines SMB1 (CIFS) protocol constants and the message
// framing shared by the client and the transaction engine.
package types

// Command is the SMB1 command code carried in header byte 4.
type Command uint8

const (
	CommandClose            Command = 0x04
	CommandTrans            Command = 0x25
	CommandTransSecondary   Command = 0x26
	CommandEcho             Command = 0x2B
	CommandReadAndX         Command = 0x2E
	CommandWriteAndX        Command = 0x2F
	CommandTrans2           Command = 0x32
	CommandTrans2Secondary  Command = 0x33
	CommandFindClose2       Command = 0x34
	CommandTreeDisconnect   Command = 0x71
	CommandNegotiate        Command = 0x72
	CommandSessionSetupAndX Command = 0x73
	CommandLogoffAndX       Command = 0x74
	CommandTreeConnectAndX  Command = 0x75
	CommandNTTrans          Command = 0xA0
	CommandNTTransSecondary Command = 0xA1
	CommandNTCreateAndX     Command = 0xA2
	CommandNoAndX           Command = 0xFF
)

var commandNames = map[Command]string{
	CommandClose:            "SMB_COM_CLOSE",
	CommandTrans:            "SMB_COM_TRANSACTION",
	CommandTransSecondary:   "SMB_COM_TRANSACTION_SECONDARY",
	CommandEcho:             "SMB_COM_ECHO",
	CommandReadAndX:         "SMB_COM_READ_ANDX",
	CommandWriteAndX:        "SMB_COM_WRITE_ANDX",
	CommandTrans2:           "SMB_COM_TRANSACTION2",
	CommandTrans2Secondary:  "SMB_COM_TRANSACTION2_SECONDARY",
	CommandFindClose2:       "SMB_COM_FIND_CLOSE2",
	CommandTreeDisconnect:   "SMB_COM_TREE_DISCONNECT",
	CommandNegotiate:        "SMB_COM_NEGOTIATE",
	CommandSessionSetupAndX: "SMB_COM_SESSION_SETUP_ANDX",
	CommandLogoffAndX:       "SMB_COM_LOGOFF_ANDX",
	CommandTreeConnectAndX:  "SMB_COM_TREE_CONNECT_ANDX",
	CommandNTTrans:          "SMB_COM_NT_TRANSACT",
	CommandNTTransSecondary: "SMB_COM_NT_TRANSACT_SECONDARY",
	CommandNTCreateAndX:     "SMB_COM_NT_CREATE_ANDX",
}

// String returns the protocol name of the command.
func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return "SMB_COM_UNKNOWN"
}

// Header flags
const (
	FlagsLockAndRead   uint8 = 0x01
	FlagsReceiveBufAvl uint8 = 0x02
	FlagsCaseless      uint8 = 0x08
	FlagsCanonical     uint8 = 0x10
	FlagsOplock        uint8 = 0x20
	FlagsNotify        uint8 = 0x40
	FlagsResponse      uint8 = 0x80
)

// Header flags2
const (
	Flags2LongNames    uint16 = 0x0001
	Flags2EAS          uint16 = 0x0002
	Flags2SecuritySig  uint16 = 0x0004
	Flags2ExtendedSec  uint16 = 0x0800
	Flags2DFSPathnames uint16 = 0x1000
	Flags2ReadIfExec   uint16 = 0x2000
	Flags2NTStatusCode uint16 = 0x4000
	Flags2Unicode      uint16 = 0x8000
)

// NTStatus is a 32-bit NT status code.
type NTStatus uint32

const (
	StatusSuccess               NTStatus = 0x00000000
	StatusPending               NTStatus = 0x00000103
	StatusNotifyEnumDir         NTStatus = 0x0000010C
	StatusBufferOverflow        NTStatus = 0x80000005
	StatusNoMoreFiles           NTStatus = 0x80000006
	StatusNotImplemented        NTStatus = 0xC0000002
	StatusInvalidHandle         NTStatus = 0xC0000008
	StatusInvalidParameter      NTStatus = 0xC000000D
	StatusNoSuchFile            NTStatus = 0xC000000F
	StatusMoreProcessingReq     NTStatus = 0xC0000016
	StatusAccessDenied          NTStatus = 0xC0000022
	StatusBufferTooSmall        NTStatus = 0xC0000023
	StatusObjectNameInvalid     NTStatus = 0xC0000033
	StatusObjectNameNotFound    NTStatus = 0xC0000034
	StatusObjectNameCollision   NTStatus = 0xC0000035
	StatusObjectPathNotFound    NTStatus = 0xC000003A
	StatusSharingViolation      NTStatus = 0xC0000043
	StatusLogonFailure          NTStatus = 0xC000006D
	StatusPasswordExpired       NTStatus = 0xC0000071
	StatusAccountDisabled       NTStatus = 0xC0000072
	StatusPipeNotAvailable      NTStatus = 0xC00000AC
	StatusPipeBusy              NTStatus = 0xC00000AE
	StatusIOTimeout             NTStatus = 0xC00000B5
	StatusNotSupported          NTStatus = 0xC00000BB
	StatusBadNetworkName        NTStatus = 0xC00000CC
	StatusPipeDisconnected      NTStatus = 0xC00000B0
	StatusNotFound              NTStatus = 0xC0000225
	StatusPathNotCovered        NTStatus = 0xC0000257
	StatusNetworkSessionExpired NTStatus = 0xC000035C
	StatusSMBBadUID             NTStatus = 0x005B0002
	StatusSMBBadTID             NTStatus = 0x00050002
)

// IsSuccess returns true if the status indicates success
func (s NTStatus) IsSuccess() bool {
	return s == StatusSuccess || s == StatusBufferOverflow
}

// IsError returns true if the status indicates an error
func (s NTStatus) IsError() bool {
	return s&0xC0000000 == 0xC0000000
}

// Capability flags from the negotiate response.
const (
	CapRawMode         uint32 = 0x00000001
	CapMpxMode         uint32 = 0x00000002
	CapUnicode         uint32 = 0x00000004
	CapLargeFiles      uint32 = 0x00000008
	CapNTSMBs          uint32 = 0x00000010
	CapRPCRemoteAPIs   uint32 = 0x00000020
	CapNTStatusCodes   uint32 = 0x00000040
	CapLevel2Oplocks   uint32 = 0x00000080
	CapLockAndRead     uint32 = 0x00000100
	CapNTFind          uint32 = 0x00000200
	CapDFS             uint32 = 0x00001000
	CapInfoLevelPassth uint32 = 0x00002000
	CapLargeReadX      uint32 = 0x00004000
	CapLargeWriteX     uint32 = 0x00008000
	CapUnix            uint32 = 0x00800000
	CapExtendedSec     uint32 = 0x80000000
)

// Security mode bits from the negotiate response.
const (
	SecurityUserLevel        uint8 = 0x01
	SecurityEncryptPasswords uint8 = 0x02
	SecuritySignaturesEnable uint8 = 0x04
	SecuritySignaturesReq    uint8 = 0x08
)

// File attributes
const (
	AttrReadOnly  uint32 = 0x00000001
	AttrHidden    uint32 = 0x00000002
	AttrSystem    uint32 = 0x00000004
	AttrVolume    uint32 = 0x00000008
	AttrDirectory uint32 = 0x00000010
	AttrArchive   uint32 = 0x00000020
	AttrNormal    uint32 = 0x00000080
)

// Protocol magic bytes
var (
	SMB1ProtocolID = [4]byte{0xFF, 'S', 'M', 'B'}
	SMB2ProtocolID = [4]byte{0xFE, 'S', 'M', 'B'}
)

// HeaderSize is the fixed SMB1 header length.
const HeaderSize = 32

// DialectNTLM012 is the only dialect offered.
const DialectNTLM012 = "NT LM 0.12"
