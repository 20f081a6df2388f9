package smb1

import (
	"context"
	"fmt"
	"time"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// NT_CREATE_ANDX request constants
const (
	// Desired access flags
	FileReadData        uint32 = 0x00000001
	FileWriteData       uint32 = 0x00000002
	FileAppendData      uint32 = 0x00000004
	FileReadEA          uint32 = 0x00000008
	FileWriteEA         uint32 = 0x00000010
	FileExecute         uint32 = 0x00000020
	FileDeleteChild     uint32 = 0x00000040
	FileReadAttributes  uint32 = 0x00000080
	FileWriteAttributes uint32 = 0x00000100
	Delete              uint32 = 0x00010000
	ReadControl         uint32 = 0x00020000
	WriteDac            uint32 = 0x00040000
	WriteOwner          uint32 = 0x00080000
	Synchronize         uint32 = 0x00100000
	MaximumAllowed      uint32 = 0x02000000
	GenericAll          uint32 = 0x10000000
	GenericExecute      uint32 = 0x20000000
	GenericWrite        uint32 = 0x40000000
	GenericRead         uint32 = 0x80000000

	// Share access
	FileShareRead   uint32 = 0x00000001
	FileShareWrite  uint32 = 0x00000002
	FileShareDelete uint32 = 0x00000004

	// Disposition
	FileSupersede   uint32 = 0x00000000
	FileOpen        uint32 = 0x00000001
	FileCreate      uint32 = 0x00000002
	FileOpenIf      uint32 = 0x00000003
	FileOverwrite   uint32 = 0x00000004
	FileOverwriteIf uint32 = 0x00000005

	// Create options
	FileDirectoryFile    uint32 = 0x00000001
	FileWriteThrough     uint32 = 0x00000002
	FileSequentialOnly   uint32 = 0x00000004
	FileNonDirectoryFile uint32 = 0x00000040

	// File attributes
	AttrReadOnly  uint32 = 0x00000001
	AttrHidden    uint32 = 0x00000002
	AttrSystem    uint32 = 0x00000004
	AttrDirectory uint32 = 0x00000010
	AttrArchive   uint32 = 0x00000020
	AttrNormal    uint32 = 0x00000080
)

// File types from the create response.
const (
	FileTypeDisk         uint16 = 0x0000
	FileTypeByteModePipe uint16 = 0x0001
	FileTypeMessagePipe  uint16 = 0x0002
)

const (
	ntCreateWords  = 24
	readAndXWords  = 12
	writeAndXWords = 14
	impersonation  = 2
)

// OpenOptions controls NTCreateAndX.
type OpenOptions struct {
	Access      uint32
	ShareAccess uint32
	Disposition uint32
	Options     uint32
	Attributes  uint32
}

// ReadOnly opens an existing file or directory for reading.
var ReadOnly = OpenOptions{
	Access:      GenericRead | ReadControl,
	ShareAccess: FileShareRead | FileShareWrite | FileShareDelete,
	Disposition: FileOpen,
}

// PipeAccess opens a named pipe for a request/response exchange.
var PipeAccess = OpenOptions{
	Access:      GenericRead | GenericWrite,
	ShareAccess: FileShareRead | FileShareWrite,
	Disposition: FileOpen,
}

// File represents an open SMB1 file handle
type File struct {
	FID       uint16
	Name      string
	Action    uint32
	Created   time.Time
	Access    time.Time
	Modified  time.Time
	Changed   time.Time
	Attrs     uint32
	Size      uint64
	FileType  uint16
	Directory bool

	tree *Tree
}

// IsPipe reports a named pipe handle.
func (f *File) IsPipe() bool {
	return f.FileType == FileTypeByteModePipe || f.FileType == FileTypeMessagePipe
}

// Open opens name relative to the tree with NTCreateAndX.
func (t *Tree) Open(ctx context.Context, name string, opts OpenOptions) (*File, error) {
	c := t.client

	bytes := encoding.NewWriter(make([]byte, 4*len(name)+8), types.BytesOffset(ntCreateWords))
	bytes.Unicode, bytes.OEM = c.unicode, c.cfg.OEM()
	bytes.String(name)
	if err := bytes.Err(); err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	nameLen := encoding.StringWireLength(name, 0, c.unicode, c.cfg.OEM())
	if c.unicode {
		nameLen -= 2
	} else {
		nameLen--
	}

	attrs := opts.Attributes
	if attrs == 0 {
		attrs = AttrNormal
	}
	words := encoding.NewWriter(make([]byte, 2*ntCreateWords), 0)
	words.Uint8(uint8(types.CommandNoAndX))
	words.Zero(3)
	words.Uint8(0)
	words.Uint16(uint16(nameLen))
	words.Uint32(0) // flags
	words.Uint32(0) // root FID
	words.Uint32(opts.Access)
	words.Uint64(0) // allocation size
	words.Uint32(attrs)
	words.Uint32(opts.ShareAccess)
	words.Uint32(opts.Disposition)
	words.Uint32(opts.Options)
	words.Uint32(impersonation)
	words.Uint8(0)

	h := c.header(types.CommandNTCreateAndX, t.TID)
	resp, err := c.roundTrip(ctx, &types.Message{Header: *h, Words: words.Bytes(), Bytes: bytes.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("create file %s failed: %w", name, err)
	}
	if resp.WordCount() < 34 {
		return nil, fmt.Errorf("%w: create word count %d", ErrProtocol, resp.WordCount())
	}

	r := encoding.NewReader(resp.Words, types.WordsOffset)
	r.Skip(4)
	r.Skip(1) // oplock level
	f := &File{Name: name, tree: t}
	f.FID = r.Uint16()
	f.Action = r.Uint32()
	f.Created = r.Time()
	f.Access = r.Time()
	f.Modified = r.Time()
	f.Changed = r.Time()
	f.Attrs = r.Uint32()
	r.Skip(8) // allocation size
	f.Size = r.Uint64()
	f.FileType = r.Uint16()
	r.Skip(2) // device state
	f.Directory = r.Uint8() != 0
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	return f, nil
}

// Close closes the handle.
func (f *File) Close(ctx context.Context) error {
	c := f.tree.client
	words := make([]byte, 6)
	encoding.PutUint16LE(words, f.FID)
	encoding.PutUint32LE(words[2:], 0xFFFFFFFF)

	h := c.header(types.CommandClose, f.tree.TID)
	if _, err := c.roundTrip(ctx, &types.Message{Header: *h, Words: words}); err != nil {
		return fmt.Errorf("close %s failed: %w", f.Name, err)
	}
	return nil
}

// ReadAt reads up to n bytes at offset. more is set when the server
// reported STATUS_BUFFER_OVERFLOW, which a message-mode pipe uses for a
// message that did not fit.
func (f *File) ReadAt(ctx context.Context, offset uint64, n int) (data []byte, more bool, err error) {
	c := f.tree.client
	n = min(n, c.maxBufferSize-types.BytesOffset(readAndXWords)-2)

	words := encoding.NewWriter(make([]byte, 2*readAndXWords), 0)
	words.Uint8(uint8(types.CommandNoAndX))
	words.Zero(3)
	words.Uint16(f.FID)
	words.Uint32(uint32(offset))
	words.Uint16(uint16(n))
	words.Uint16(uint16(n))
	words.Uint32(0) // timeout
	words.Uint16(0) // remaining
	words.Uint32(uint32(offset >> 32))

	h := c.header(types.CommandReadAndX, f.tree.TID)
	resp, err := c.roundTrip(ctx, &types.Message{Header: *h, Words: words.Bytes()})
	if err != nil {
		return nil, false, fmt.Errorf("read file failed: %w", err)
	}
	if resp.WordCount() < readAndXWords {
		return nil, false, fmt.Errorf("%w: read word count %d", ErrProtocol, resp.WordCount())
	}

	length := int(encoding.Uint16LE(resp.Words[10:]))
	dataOffset := int(encoding.Uint16LE(resp.Words[12:]))
	start := dataOffset - types.BytesOffset(resp.WordCount())
	if start < 0 || start+length > len(resp.Bytes) {
		return nil, false, fmt.Errorf("%w: read data out of bounds", ErrProtocol)
	}
	return resp.Bytes[start : start+length], resp.Header.Status == types.StatusBufferOverflow, nil
}

// WriteAt writes p at offset and returns the count the server accepted.
func (f *File) WriteAt(ctx context.Context, offset uint64, p []byte) (int, error) {
	c := f.tree.client
	// one pad byte aligns the data to an even offset
	dataOffset := types.BytesOffset(writeAndXWords) + 1
	if len(p) > c.maxBufferSize-dataOffset {
		p = p[:c.maxBufferSize-dataOffset]
	}

	mode := uint16(0)
	if f.IsPipe() {
		mode = 0x0008 // message start
	}
	words := encoding.NewWriter(make([]byte, 2*writeAndXWords), 0)
	words.Uint8(uint8(types.CommandNoAndX))
	words.Zero(3)
	words.Uint16(f.FID)
	words.Uint32(uint32(offset))
	words.Uint32(0) // timeout
	words.Uint16(mode)
	words.Uint16(uint16(len(p)))
	words.Uint16(0) // data length high
	words.Uint16(uint16(len(p)))
	words.Uint16(uint16(dataOffset))
	words.Uint32(uint32(offset >> 32))

	h := c.header(types.CommandWriteAndX, f.tree.TID)
	resp, err := c.roundTrip(ctx, &types.Message{
		Header: *h,
		Words:  words.Bytes(),
		Bytes:  append([]byte{0}, p...),
	})
	if err != nil {
		return 0, fmt.Errorf("write file failed: %w", err)
	}
	if resp.WordCount() < 6 {
		return 0, fmt.Errorf("%w: write word count %d", ErrProtocol, resp.WordCount())
	}
	return int(encoding.Uint16LE(resp.Words[4:])), nil
}

// FindClose2 closes a search handle left open by FindFirst2.
func (t *Tree) FindClose2(ctx context.Context, sid uint16) error {
	c := t.client
	h := c.header(types.CommandFindClose2, t.TID)
	words := make([]byte, 2)
	encoding.PutUint16LE(words, sid)
	if _, err := c.roundTrip(ctx, &types.Message{Header: *h, Words: words}); err != nil {
		return fmt.Errorf("find close failed: %w", err)
	}
	return nil
}
