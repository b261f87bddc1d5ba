package agentrpc

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// healthProbeTag is the single varint field (agent generation number) a
// probe frame carries. Kept off the gRPC channel so a dialing agent can be
// health-checked before a full mTLS handshake is worth attempting.
const healthProbeTag protowire.Number = 1

// EncodeHealthProbe builds a length-prefixed varint frame carrying
// generation, the agent's restart counter, for a raw TCP health probe.
func EncodeHealthProbe(generation uint64) []byte {
	var body []byte
	body = protowire.AppendTag(body, healthProbeTag, protowire.VarintType)
	body = protowire.AppendVarint(body, generation)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

// DecodeHealthProbe parses a frame built by EncodeHealthProbe, returning
// the agent's restart generation.
func DecodeHealthProbe(frame []byte) (uint64, error) {
	if len(frame) < 4 {
		return 0, fmt.Errorf("agentrpc: health probe frame too short")
	}
	n := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if uint32(len(body)) != n {
		return 0, fmt.Errorf("agentrpc: health probe length mismatch: want %d got %d", n, len(body))
	}

	num, typ, tagLen := protowire.ConsumeTag(body)
	if tagLen < 0 || num != healthProbeTag || typ != protowire.VarintType {
		return 0, fmt.Errorf("agentrpc: malformed health probe tag")
	}
	generation, genLen := protowire.ConsumeVarint(body[tagLen:])
	if genLen < 0 {
		return 0, fmt.Errorf("agentrpc: malformed health probe varint")
	}
	return generation, nil
}

// ProbeHealth dials addr over raw TCP, exchanges one health probe frame,
// and confirms the agent echoes back a generation no smaller than sent.
// It needs no mTLS handshake. Nothing in this module calls it; the
// manager's agent liveness polling uses pkg/health's TCP checker.
func ProbeHealth(addr string, generation uint64, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("agentrpc: dial %s: %w", addr, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(EncodeHealthProbe(generation)); err != nil {
		return fmt.Errorf("agentrpc: write probe to %s: %w", addr, err)
	}

	lenBuf := make([]byte, 4)
	if _, err := conn.Read(lenBuf); err != nil {
		return fmt.Errorf("agentrpc: read probe length from %s: %w", addr, err)
	}
	n := binary.BigEndian.Uint32(lenBuf)
	body := make([]byte, n)
	if _, err := conn.Read(body); err != nil {
		return fmt.Errorf("agentrpc: read probe body from %s: %w", addr, err)
	}

	echoed, err := DecodeHealthProbe(append(lenBuf, body...))
	if err != nil {
		return err
	}
	if echoed < generation {
		return fmt.Errorf("agentrpc: agent %s echoed stale generation %d < %d", addr, echoed, generation)
	}
	return nil
}
