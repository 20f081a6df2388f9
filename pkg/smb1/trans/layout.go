package trans

import "github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"

// paddingSize is the alignment of parameter and data sections relative to
// the header start.
const paddingSize = 4

// family describes the fixed word layout of one transaction command family.
type family struct {
	primary   types.Command
	secondary types.Command

	// wide families use 4-byte counts and offsets.
	wide bool
	// named families carry a transaction name in the primary byte block.
	named bool

	primaryWords   int // fixed word bytes before the setup words
	secondaryWords int
	responseWords  int // fixed response word bytes before the setup words
}

var (
	transFamily = &family{
		primary:        types.CommandTrans,
		secondary:      types.CommandTransSecondary,
		named:          true,
		primaryWords:   28,
		secondaryWords: 16,
		responseWords:  20,
	}
	trans2Family = &family{
		primary:        types.CommandTrans2,
		secondary:      types.CommandTrans2Secondary,
		primaryWords:   28,
		secondaryWords: 18,
		responseWords:  20,
	}
	ntTransFamily = &family{
		primary:        types.CommandNTTrans,
		secondary:      types.CommandNTTransSecondary,
		wide:           true,
		primaryWords:   38,
		secondaryWords: 36,
		responseWords:  36,
	}
)

// familyOf resolves the family of a primary or secondary command.
func familyOf(cmd types.Command) (*family, error) {
	switch cmd {
	case types.CommandTrans, types.CommandTransSecondary:
		return transFamily, nil
	case types.CommandTrans2, types.CommandTrans2Secondary:
		return trans2Family, nil
	case types.CommandNTTrans, types.CommandNTTransSecondary:
		return ntTransFamily, nil
	}
	return nil, ErrUnknownCommand
}

// maxCount is the largest count the family's fields can express.
func (f *family) maxCount() int {
	if f.wide {
		return 0x7FFFFFFF
	}
	return 0xFFFF
}

// primarySetupOffset is where setup words start in a primary request.
func (f *family) primarySetupOffset() int {
	return types.HeaderSize + 1 + f.primaryWords
}

// secondaryParameterOffset is the unaligned start of the byte block in a
// secondary request.
func (f *family) secondaryParameterOffset() int {
	return types.HeaderSize + 1 + f.secondaryWords + 2
}

func pad(off int) int {
	if p := off % paddingSize; p != 0 {
		return paddingSize - p
	}
	return 0
}

func align(off int) int {
	return off + pad(off)
}
