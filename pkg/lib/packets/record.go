package packets

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
)

// Record is one captured packet as delivered to a subscriber, or an
// error-only record when the packet or the capture itself failed.
type Record struct {
	Summary         string         `json:"summary,omitempty"`
	Timestamp       *time.Time     `json:"timestamp,omitempty"`
	IP              *IPInfo        `json:"ip,omitempty"`
	Transport       *TransportInfo `json:"transport,omitempty"`
	HighestProtocol string         `json:"highest_protocol,omitempty"`
	Error           string         `json:"error,omitempty"`

	// cause is set when the capture source itself failed; such records
	// always end the stream.
	cause error
}

// IPInfo holds network layer addresses.
type IPInfo struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// TransportInfo is populated for TCP and UDP only.
type TransportInfo struct {
	Protocol string `json:"protocol"`
	SrcPort  int    `json:"src_port"`
	DstPort  int    `json:"dst_port"`
}

// IsError reports whether r is an error-only record.
func (r Record) IsError() bool {
	return r.Error != ""
}

// ErrorRecord wraps err into an error-only record.
func ErrorRecord(err error) Record {
	return Record{Error: err.Error()}
}

func fatalRecord(err error) Record {
	return Record{Error: err.Error(), cause: err}
}

// FromPacket derives a Record from a decoded packet. A packet gopacket could
// not fully decode yields an error-only record.
func FromPacket(packet gopacket.Packet) Record {
	if failure := packet.ErrorLayer(); failure != nil {
		return ErrorRecord(lib.NewError(lib.KindTransientParse, "cannot decode packet", failure.Error()))
	}

	var rec Record
	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		ts := md.Timestamp
		rec.Timestamp = &ts
	}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.IP = &IPInfo{Src: ip.SrcIP.String(), Dst: ip.DstIP.String()}
	case *layers.IPv6:
		rec.IP = &IPInfo{Src: ip.SrcIP.String(), Dst: ip.DstIP.String()}
	}

	switch tl := packet.TransportLayer().(type) {
	case *layers.TCP:
		rec.Transport = &TransportInfo{Protocol: "TCP", SrcPort: int(tl.SrcPort), DstPort: int(tl.DstPort)}
	case *layers.UDP:
		rec.Transport = &TransportInfo{Protocol: "UDP", SrcPort: int(tl.SrcPort), DstPort: int(tl.DstPort)}
	}

	rec.HighestProtocol = highestProtocol(packet)
	rec.Summary = summarize(packet, rec)

	return rec
}

// highestProtocol names the topmost decoded layer, ignoring opaque payload
// unless nothing else was recognized.
func highestProtocol(packet gopacket.Packet) string {
	all := packet.Layers()
	for i := len(all) - 1; i >= 0; i-- {
		t := all[i].LayerType()
		if t == gopacket.LayerTypePayload || t == gopacket.LayerTypeDecodeFailure {
			continue
		}
		return t.String()
	}
	if len(all) > 0 {
		return "DATA"
	}
	return "UNKNOWN"
}

func summarize(packet gopacket.Packet, rec Record) string {
	var b strings.Builder
	b.WriteString(rec.HighestProtocol)

	switch {
	case rec.IP != nil && rec.Transport != nil:
		fmt.Fprintf(&b, " %s -> %s",
			net.JoinHostPort(rec.IP.Src, strconv.Itoa(rec.Transport.SrcPort)),
			net.JoinHostPort(rec.IP.Dst, strconv.Itoa(rec.Transport.DstPort)))
	case rec.IP != nil:
		fmt.Fprintf(&b, " %s -> %s", rec.IP.Src, rec.IP.Dst)
	default:
		if link := packet.LinkLayer(); link != nil {
			src, dst := link.LinkFlow().Endpoints()
			fmt.Fprintf(&b, " %s -> %s", src, dst)
		}
	}

	length := len(packet.Data())
	if md := packet.Metadata(); md != nil && md.Length > 0 {
		length = md.Length
	}
	fmt.Fprintf(&b, " len=%d", length)

	return b.String()
}
