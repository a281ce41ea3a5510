package packets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/procexec"
	"go.uber.org/zap"
)

// DefaultTool is the live capture binary used by TsharkSource.
const DefaultTool = "tshark"

// Source produces records from a live interface.
type Source interface {
	// Capture blocks, handing every record to emit until the capture ends,
	// ctx is cancelled or emit returns false. A failure to start capturing
	// is reported with lib.KindCaptureInit. Undecodable packets are emitted
	// as error records and do not end the capture.
	Capture(ctx context.Context, iface, filter string, emit func(Record) bool) error
}

// TsharkSource runs tshark writing pcap to stdout and decodes the stream.
type TsharkSource struct {
	Tool   string
	Logger *zap.Logger
}

func (s TsharkSource) Capture(ctx context.Context, iface, filter string, emit func(Record) bool) error {
	tool := s.Tool
	if tool == "" {
		tool = DefaultTool
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	args := []string{"-i", iface}
	if filter != "" {
		args = append(args, "-f", filter)
	}
	args = append(args, "-l", "-q", "-F", "pcap", "-w", "-")

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.SysProcAttr = procexec.SysProcAttr()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return lib.NewError(lib.KindCaptureInit, "cannot open capture pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return lib.NewError(lib.KindCaptureInit, "cannot start "+tool, err)
	}
	logger.Debug("Live capture started",
		zap.String("interface", iface),
		zap.String("filter", filter),
		zap.Int("pid", cmd.Process.Pid))

	waited := false
	defer func() {
		if waited {
			return
		}
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	err = Decode(stdout, emit)
	if lib.KindOf(err) == lib.KindCaptureInit {
		// The tool died before writing a header; its stderr says why.
		waitErr := cmd.Wait()
		waited = true
		if ctx.Err() != nil {
			return nil
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return lib.NewError(lib.KindCaptureInit, msg, waitErr)
		}
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Decode reads a pcap stream from r and emits one record per packet.
func Decode(r io.Reader, emit func(Record) bool) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return lib.NewError(lib.KindCaptureInit, "cannot read capture header", err)
	}
	linkType := reader.LinkType()

	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			// Framing is lost; report it and end the capture.
			emit(ErrorRecord(lib.NewError(lib.KindTransientParse, "cannot read packet", err)))
			return nil
		}

		packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{NoCopy: true})
		packet.Metadata().CaptureInfo = ci
		if !emit(FromPacket(packet)) {
			return nil
		}
	}
}
