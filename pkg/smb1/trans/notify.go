package trans

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
)

// Completion filter bits
const (
	NotifyFileName   uint32 = 0x00000001
	NotifyDirName    uint32 = 0x00000002
	NotifyAttributes uint32 = 0x00000004
	NotifySize       uint32 = 0x00000008
	NotifyLastWrite  uint32 = 0x00000010
	NotifyLastAccess uint32 = 0x00000020
	NotifyCreation   uint32 = 0x00000040
	NotifyEA         uint32 = 0x00000080
	NotifySecurity   uint32 = 0x00000100

	NotifyDefault = NotifyFileName | NotifyDirName | NotifyAttributes | NotifySize | NotifyLastWrite
)

// Change actions
const (
	ActionAdded          uint32 = 1
	ActionRemoved        uint32 = 2
	ActionModified       uint32 = 3
	ActionRenamedOldName uint32 = 4
	ActionRenamedNewName uint32 = 5
)

// DefaultNotifyBufferSize bounds the change records returned per call.
const DefaultNotifyBufferSize = 1024

// Change is one FILE_NOTIFY_INFORMATION record.
type Change struct {
	Action   uint32
	FileName string
}

// ActionString names the change action.
func (c Change) ActionString() string {
	switch c.Action {
	case ActionAdded:
		return "added"
	case ActionRemoved:
		return "removed"
	case ActionModified:
		return "modified"
	case ActionRenamedOldName:
		return "renamed-from"
	case ActionRenamedNewName:
		return "renamed-to"
	default:
		return fmt.Sprintf("action-%d", c.Action)
	}
}

// NotifyChange waits for changes in an open directory.
type NotifyChange struct {
	noData

	FID        uint16
	Filter     uint32
	WatchTree  bool
	BufferSize uint32

	Changes []Change
}

// NewNotifyChange watches fid with the default filter.
func NewNotifyChange(fid uint16, recursive bool) *NotifyChange {
	return &NotifyChange{
		FID:        fid,
		Filter:     NotifyDefault,
		WatchTree:  recursive,
		BufferSize: DefaultNotifyBufferSize,
	}
}

func (n *NotifyChange) Kind() Kind { return KindNotifyChange }

func (n *NotifyChange) Limit(o *Options) {
	o.MaxParameterCount = n.BufferSize
	o.MaxDataCount = 0
	o.MaxSetupCount = 0
}

func (n *NotifyChange) EncodeSetup(w *encoding.Writer) error {
	w.Uint32(n.Filter)
	w.Uint16(n.FID)
	if n.WatchTree {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
	w.Uint8(0)
	return w.Err()
}

func (n *NotifyChange) EncodeParameters(*encoding.Writer) error { return nil }

func (n *NotifyChange) DecodeSetup([]byte) error { return nil }

// DecodeParameters parses the chained change records.
func (n *NotifyChange) DecodeParameters(b []byte) (int, error) {
	n.Changes = n.Changes[:0]
	off := 0
	for off < len(b) {
		r := encoding.NewReader(b[off:], 0)
		next := int(r.Uint32())
		action := r.Uint32()
		size := int(r.Uint32())
		name := r.Bytes(size)
		if err := r.Err(); err != nil {
			return off, fmt.Errorf("change record at %d: %w", off, err)
		}
		n.Changes = append(n.Changes, Change{Action: action, FileName: encoding.FromUTF16LE(name)})
		if next == 0 {
			off += r.Offset()
			break
		}
		off += next
	}
	return min(off, len(b)), nil
}

func (n *NotifyChange) DecodeData([]byte) (int, error) { return 0, nil }
