// Package capture reads a pcap file or a live interface, reassembles each
// TCP connection's two directions independently, and feeds the NetBIOS-
// framed SMB1 messages it finds into one internal/smb1/outer.Conversation
// per connection — the minimal plumbing cmd/dce2watch needs to drive the
// reassembly engine end-to-end against real capture data.
package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/filetracker"
	"github.com/flowguard/dce2smb/internal/logger"
	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/outer"
	"github.com/flowguard/dce2smb/internal/smb1/trans"
	"github.com/flowguard/dce2smb/pkg/metrics"
)

// Source is a packet data source: either an offline pcap file or a live
// interface handle. Both gopacket/pcapgo.Reader and gopacket/pcap.Handle
// satisfy gopacket.PacketDataSource.
type Source struct {
	data     gopacket.PacketDataSource
	linkType layers.LinkType
	closeFn  func() error
}

// OpenOffline opens a classic pcap file for replay. pcapng capture files
// are not supported.
func OpenOffline(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: read pcap header of %s: %w", path, err)
	}
	return &Source{data: r, linkType: r.LinkType(), closeFn: f.Close}, nil
}

// OpenLive opens a network interface for live capture.
func OpenLive(iface string, snaplen int, promiscuous bool) (*Source, error) {
	handle, err := pcap.OpenLive(iface, int32(snaplen), promiscuous, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("capture: open interface %s: %w", iface, err)
	}
	return &Source{
		data:     handle,
		linkType: handle.LinkType(),
		closeFn:  func() error { handle.Close(); return nil },
	}, nil
}

// Close releases the underlying file or interface handle.
func (s *Source) Close() error { return s.closeFn() }

// Collaborators bundles the per-run dependencies every Conversation created
// during a capture run shares. RPC is shared across flows (it keys its
// state by session ID internally); Alert and Metrics are passed straight
// through to each flow's Session.
type Collaborators struct {
	Policy  policy.Target
	RPC     trans.DCERPCAnalyzer
	Alert   alerts.Sink
	Metrics metrics.TransMetrics
}

// Run reads every packet from src to completion, reassembling and
// dispatching each TCP connection's SMB1 traffic as it goes. It returns
// once src is exhausted (EOF for an offline file; never, for a live
// interface, until an error or the process is killed).
func Run(src *Source, collab Collaborators) error {
	flows := newFlowTable()
	for {
		data, ci, err := src.data.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("capture: read packet: %w", err)
		}
		tuple, tcp, ok := decodeTCP(data, src.linkType)
		if !ok {
			continue
		}
		flows.observe(tuple, tcp, ci.Timestamp, collab)
	}
	flows.finishAll()
	return nil
}

func decodeTCP(data []byte, linkType layers.LinkType) (fourTuple, *layers.TCP, bool) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	nl := pkt.NetworkLayer()
	if nl == nil {
		return fourTuple{}, nil, false
	}
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return fourTuple{}, nil, false
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok {
		return fourTuple{}, nil, false
	}
	src, dst := nl.NetworkFlow().Endpoints()
	return fourTuple{
		srcIP:   src.String(),
		dstIP:   dst.String(),
		srcPort: uint16(tcp.SrcPort),
		dstPort: uint16(tcp.DstPort),
	}, tcp, true
}

// fourTuple identifies one direction of a TCP connection.
type fourTuple struct {
	srcIP, dstIP     string
	srcPort, dstPort uint16
}

func (t fourTuple) reverse() fourTuple {
	return fourTuple{srcIP: t.dstIP, dstIP: t.srcIP, srcPort: t.dstPort, dstPort: t.srcPort}
}

// segment is one TCP payload, not yet placed in stream order.
type segment struct {
	seq     uint32
	payload []byte
	ts      time.Time
}

// flowState holds one TCP connection's unordered segments for each
// direction. The tuple that created the flow (the connection's first
// observed packet) is the "request" direction (client to server); its
// reverse is the "response" direction — a pcap replay has no reliable way
// to know which end is the SMB client beyond who spoke first.
type flowState struct {
	conv         *outer.Conversation
	reqSegments  []segment
	respSegments []segment
}

type flowTable struct {
	// byTuple maps an exact directional tuple to its flow and whether that
	// tuple is the flow's response direction.
	byTuple map[fourTuple]*flowEntry
	order   []*flowState // preserves creation order for deterministic finishAll
}

type flowEntry struct {
	state  *flowState
	isResp bool
}

func newFlowTable() *flowTable {
	return &flowTable{byTuple: make(map[fourTuple]*flowEntry)}
}

func (ft *flowTable) observe(tuple fourTuple, tcp *layers.TCP, ts time.Time, collab Collaborators) {
	entry, ok := ft.byTuple[tuple]
	if !ok {
		fs := &flowState{conv: newConversation(collab)}
		entry = &flowEntry{state: fs, isResp: false}
		ft.byTuple[tuple] = entry
		ft.byTuple[tuple.reverse()] = &flowEntry{state: fs, isResp: true}
		ft.order = append(ft.order, fs)
	}
	if len(tcp.Payload) == 0 {
		return
	}
	seg := segment{seq: tcp.Seq, payload: append([]byte(nil), tcp.Payload...), ts: ts}
	if entry.isResp {
		entry.state.respSegments = append(entry.state.respSegments, seg)
	} else {
		entry.state.reqSegments = append(entry.state.reqSegments, seg)
	}
}

func newConversation(collab Collaborators) *outer.Conversation {
	files := filetracker.New()
	sess := trans.NewSession(collab.Policy, files, collab.RPC, collab.Alert)
	sess.Metrics = collab.Metrics
	return outer.NewConversation(sess, files)
}

// finishAll orders each flow's segments, frames NetBIOS/SMB1 messages from
// each direction, interleaves the two directions by timestamp, and
// dispatches every message to its Conversation.
func (ft *flowTable) finishAll() {
	for _, fs := range ft.order {
		fs.finish()
	}
}

func (fs *flowState) finish() {
	reqData, reqBreaks := orderedBytes(fs.reqSegments)
	respData, respBreaks := orderedBytes(fs.respSegments)

	reqMsgs, err := frameMessages(reqData, reqBreaks, false)
	if err != nil {
		logger.Warn("capture: request stream framing stopped early", "error", err)
	}
	respMsgs, err := frameMessages(respData, respBreaks, true)
	if err != nil {
		logger.Warn("capture: response stream framing stopped early", "error", err)
	}

	all := append(reqMsgs, respMsgs...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	for _, m := range all {
		var err error
		if m.isResponse {
			err = fs.conv.HandleResponse(m.payload)
		} else {
			err = fs.conv.HandleRequest(m.payload)
		}
		if err != nil {
			logger.Warn("capture: dropped unparseable SMB1 message", "error", err, "response", m.isResponse)
		}
	}
}

// breakpoint records the timestamp of the packet whose payload ended at
// offset into an ordered byte stream, for approximating which packet
// carried the last byte of a later-framed message.
type breakpoint struct {
	offset int
	ts     time.Time
}

// orderedBytes sorts segs by sequence number and concatenates them into one
// stream, trimming bytes that duplicate an already-written range. It makes
// no attempt to recover from a genuine capture gap (a dropped packet): the
// stream simply continues at the next segment's offset, same as the data a
// live analyzer would see if it never buffered past a gap.
func orderedBytes(segs []segment) ([]byte, []breakpoint) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].seq < segs[j].seq })

	var buf bytes.Buffer
	var breaks []breakpoint
	var next uint32
	have := false

	for _, sg := range segs {
		if !have {
			next = sg.seq
			have = true
		}
		if sg.seq < next {
			skip := next - sg.seq
			if skip >= uint32(len(sg.payload)) {
				continue
			}
			sg.payload = sg.payload[skip:]
			sg.seq = next
		}
		buf.Write(sg.payload)
		next = sg.seq + uint32(len(sg.payload))
		breaks = append(breaks, breakpoint{offset: buf.Len(), ts: sg.ts})
	}
	return buf.Bytes(), breaks
}

func tsForOffset(breaks []breakpoint, offset int) time.Time {
	idx := sort.Search(len(breaks), func(i int) bool { return breaks[i].offset >= offset })
	if idx < len(breaks) {
		return breaks[idx].ts
	}
	if len(breaks) > 0 {
		return breaks[len(breaks)-1].ts
	}
	return time.Time{}
}

type timedMessage struct {
	ts         time.Time
	payload    []byte
	isResponse bool
}

// frameMessages splits data into NetBIOS session-service frames via
// outer.ReadMessage, stamping each resulting SMB1 message with the
// timestamp of the packet that carried its last byte. It returns the
// messages framed before any error, alongside that error, so a truncated
// trailing fragment doesn't lose everything read before it.
func frameMessages(data []byte, breaks []breakpoint, isResponse bool) ([]timedMessage, error) {
	total := len(data)
	underlying := bytes.NewReader(data)
	r := bufio.NewReader(underlying)

	var msgs []timedMessage
	for {
		msg, err := outer.ReadMessage(r)
		if err == io.EOF {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		offset := total - underlying.Len() - r.Buffered()
		msgs = append(msgs, timedMessage{
			ts:         tsForOffset(breaks, offset),
			payload:    msg,
			isResponse: isResponse,
		})
	}
}
