package reliable

import "github.com/marcotidei/LAURACam/protocol"

// windowSize bounds how many processed sequence numbers are remembered per
// source. Sixteen covers every retransmission the engine can produce plus
// generous network-level duplication.
const windowSize = 16

type sourceWindow struct {
	order   []uint16
	replies map[uint16][][]byte
}

// Deduper remembers which (source, seq) commands were already executed and
// caches the reply frames, so a retransmitted TriggerStart re-sends the Ack
// without touching the camera a second time.
type Deduper struct {
	sources map[protocol.DeviceID]*sourceWindow
}

func NewDeduper() *Deduper {
	return &Deduper{sources: make(map[protocol.DeviceID]*sourceWindow)}
}

// Replay returns the cached reply frames for a command that was already
// processed, or (nil, false) for a first sighting.
func (d *Deduper) Replay(source protocol.DeviceID, seq uint16) ([][]byte, bool) {
	w, ok := d.sources[source]
	if !ok {
		return nil, false
	}
	replies, ok := w.replies[seq]
	return replies, ok
}

// Record marks (source, seq) as processed and caches the frames that were
// sent in response. The oldest entry falls out once the window is full.
func (d *Deduper) Record(source protocol.DeviceID, seq uint16, replies [][]byte) {
	w, ok := d.sources[source]
	if !ok {
		w = &sourceWindow{replies: make(map[uint16][][]byte)}
		d.sources[source] = w
	}
	if _, dup := w.replies[seq]; dup {
		w.replies[seq] = replies
		return
	}
	if len(w.order) >= windowSize {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.replies, oldest)
	}
	w.order = append(w.order, seq)
	w.replies[seq] = replies
}
