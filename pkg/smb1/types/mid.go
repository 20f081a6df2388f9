package types

import "sync/atomic"

// MIDAllocator hands out multiplex ids for one connection. 0 is never used
// and 0xFFFF is reserved for unsolicited oplock breaks.
type MIDAllocator struct {
	next atomic.Uint32
}

// Next returns the next usable MID.
func (a *MIDAllocator) Next() uint16 {
	for {
		mid := uint16(a.next.Add(1))
		if mid != 0 && mid != 0xFFFF {
			return mid
		}
	}
}
