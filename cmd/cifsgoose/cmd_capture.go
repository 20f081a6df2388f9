package main

import (
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/pkg/capture"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// runCapture decodes the SMB1 traffic in a pcap or pcapng file
func runCapture(path string) error {
	info_("Decoding %s...", path)

	d := capture.NewDecoder(capture.DefaultIdleTimeout)
	if verbose {
		d.OnMessage = printMessage
	}
	d.OnTransaction = printTransaction

	if err := capture.ReadFile(path, d); err != nil {
		return err
	}

	s := d.Stats()
	fmt.Println()
	success_("%d packet(s), %d SMB1 message(s), %d transaction(s)", s.Packets, s.Messages, s.Transactions)
	if s.Incomplete > 0 {
		warn_("%d transaction(s) incomplete", s.Incomplete)
	}
	if s.Errors > 0 || s.Gaps > 0 {
		warn_("%d decode error(s), %d stream gap(s), %d byte(s) skipped", s.Errors, s.Gaps, s.Dropped)
	}
	return nil
}

func printMessage(m *capture.Message) {
	dir := "->"
	if m.Response {
		dir = "<-"
	}
	h := m.Msg.Header
	debug_("%s %s %s %s mid=%d tid=%d uid=%d %s", m.Time.Format("15:04:05.000000"), m.Conn, dir,
		h.Command, h.MID, h.TID, h.UID, statusString(h.Status))
}

func printTransaction(tx *capture.Transaction) {
	req := tx.Request
	name := req.Kind().String()
	if req.TransName != "" {
		name += " " + req.TransName
	}

	color := colorGreen
	switch {
	case tx.Err != nil:
		color = colorRed
	case tx.Status != types.StatusSuccess:
		color = colorYellow
	}

	fmt.Printf("%s %s mid=%-5d %s%s%s\n", tx.Time.Format("15:04:05.000000"), tx.Conn, tx.MID, colorBold, name, colorReset)
	fmt.Printf("    request:  setup=%d params=%d data=%d\n", len(req.SetupWords), len(req.Parameters), len(req.Payload))
	fmt.Printf("    response: %s%s%s in %d fragment(s) setup=%d params=%d data=%d\n",
		color, statusString(tx.Status), colorReset, tx.Fragments,
		len(req.ResponseSetup), len(req.ResponseParameters), len(req.ResponseData))
	if tx.Err != nil {
		fmt.Printf("    %serror: %v%s\n", colorRed, tx.Err, colorReset)
	}
}

func statusString(s types.NTStatus) string {
	if name := smb1.StatusName(s); name != "UNKNOWN" {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}
