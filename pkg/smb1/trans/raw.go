package trans

import (
	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Raw carries opaque setup, parameters and data. It backs capture decoding
// and any sub-command without a dedicated payload.
type Raw struct {
	Command    types.Command
	SubCommand uint16
	TransName  string
	SetupWords []uint16
	Parameters []byte
	Payload    []byte

	ResponseSetup      []byte
	ResponseParameters []byte
	ResponseData       []byte
}

func (r *Raw) Kind() Kind { return Kind{Command: r.Command, SubCommand: r.SubCommand} }

func (r *Raw) Name() string { return r.TransName }

func (r *Raw) EncodeSetup(w *encoding.Writer) error {
	return setupWords(w, r.SetupWords...)
}

func (r *Raw) EncodeParameters(w *encoding.Writer) error {
	w.Write(r.Parameters)
	return w.Err()
}

func (r *Raw) EncodeData(w *encoding.Writer) error {
	w.Write(r.Payload)
	return w.Err()
}

func (r *Raw) DecodeSetup(setup []byte) error {
	r.ResponseSetup = append([]byte(nil), setup...)
	return nil
}

func (r *Raw) DecodeParameters(b []byte) (int, error) {
	r.ResponseParameters = append([]byte(nil), b...)
	return len(b), nil
}

func (r *Raw) DecodeData(b []byte) (int, error) {
	r.ResponseData = append([]byte(nil), b...)
	return len(b), nil
}
