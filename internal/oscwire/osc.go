// Package oscwire implements the OSC-compatible wire format used by both
// the control endpoint (§4.7) and the streaming manager's negotiation
// messages (§4.6, §6): an address string, a type-tag string (T/F/i/f/s),
// and the corresponding big-endian arguments, plus bundles for replies.
//
// No OSC library appears anywhere in the example pack (documented in
// SPEC_FULL.md); per §9's "exception-based message parsing becomes a
// result-returning parser" guidance, decoding here is a small explicit
// byte-by-byte walk that returns an error rather than panicking, grounded
// in shape on alxayo-rtmp-go's chunk/amf decoders (read a length-delimited
// field, advance a cursor, bail out on a malformed read).
package oscwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Message is one OSC-style command: an address plus typed arguments.
type Message struct {
	Address string
	Args    []any // bool, int32, float32, or string
}

// Bundle wraps zero or more messages for a single reply (§4.7: "a bundled
// reply containing current source status entries").
type Bundle struct {
	Messages []Message
}

func pad4(n int) int {
	rem := n % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

func writeOSCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
	for i := 0; i < pad4(len(s)+1); i++ {
		buf.WriteByte(0)
	}
}

func readOSCString(data []byte, off int) (string, int, error) {
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return "", 0, fmt.Errorf("oscwire: unterminated string at offset %d", off)
	}
	s := string(data[off : off+end])
	total := end + 1 + pad4(end+1)
	if off+total > len(data) {
		return "", 0, fmt.Errorf("oscwire: string padding overruns message")
	}
	return s, off + total, nil
}

// Encode serializes a single message in standard OSC binary form.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	writeOSCString(&buf, msg.Address)

	tags := ","
	for _, a := range msg.Args {
		switch v := a.(type) {
		case bool:
			if v {
				tags += "T"
			} else {
				tags += "F"
			}
		case int32:
			tags += "i"
		case float32:
			tags += "f"
		case string:
			tags += "s"
		default:
			return nil, fmt.Errorf("oscwire: unsupported argument type %T", a)
		}
	}
	writeOSCString(&buf, tags)

	for _, a := range msg.Args {
		switch v := a.(type) {
		case bool:
			// OSC T/F tags carry no argument bytes.
		case int32:
			binary.Write(&buf, binary.BigEndian, v)
		case float32:
			binary.Write(&buf, binary.BigEndian, math.Float32bits(v))
		case string:
			writeOSCString(&buf, v)
		}
	}
	return buf.Bytes(), nil
}

// Decode parses a single OSC message. A malformed message yields an error
// and must be dropped (§4.7: "malformed messages are ignored, no reply").
func Decode(data []byte) (Message, error) {
	addr, off, err := readOSCString(data, 0)
	if err != nil {
		return Message{}, fmt.Errorf("oscwire: address: %w", err)
	}
	if len(addr) == 0 || addr[0] != '/' {
		return Message{}, fmt.Errorf("oscwire: address must start with '/'")
	}

	tags, off, err := readOSCString(data, off)
	if err != nil {
		return Message{}, fmt.Errorf("oscwire: type tags: %w", err)
	}
	if len(tags) == 0 || tags[0] != ',' {
		return Message{}, fmt.Errorf("oscwire: type tag string must start with ','")
	}

	var args []any
	for _, tag := range tags[1:] {
		switch tag {
		case 'T':
			args = append(args, true)
		case 'F':
			args = append(args, false)
		case 'i':
			if off+4 > len(data) {
				return Message{}, fmt.Errorf("oscwire: truncated int32 argument")
			}
			args = append(args, int32(binary.BigEndian.Uint32(data[off:off+4])))
			off += 4
		case 'f':
			if off+4 > len(data) {
				return Message{}, fmt.Errorf("oscwire: truncated float32 argument")
			}
			args = append(args, math.Float32frombits(binary.BigEndian.Uint32(data[off:off+4])))
			off += 4
		case 's':
			var s string
			s, off, err = readOSCString(data, off)
			if err != nil {
				return Message{}, fmt.Errorf("oscwire: string argument: %w", err)
			}
			args = append(args, s)
		default:
			return Message{}, fmt.Errorf("oscwire: unknown type tag %q", tag)
		}
	}

	return Message{Address: addr, Args: args}, nil
}

// EncodeBundle serializes a reply bundle, or a bare message if it contains
// exactly one element (OSC bundles add "#bundle" framing overhead that is
// unnecessary for a single-message reply).
func EncodeBundle(b Bundle) ([]byte, error) {
	if len(b.Messages) == 1 {
		return Encode(b.Messages[0])
	}

	var buf bytes.Buffer
	writeOSCString(&buf, "#bundle")
	var zero uint64
	binary.Write(&buf, binary.BigEndian, zero) // immediate-execution time tag

	for _, msg := range b.Messages {
		encoded, err := Encode(msg)
		if err != nil {
			return nil, err
		}
		binary.Write(&buf, binary.BigEndian, int32(len(encoded)))
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

// ArgFloat32 returns args[i] as a float32, accepting an int32 as a widening
// conversion (§4.7 type-mismatch handling is the caller's job; this merely
// extracts, it does not validate target semantics).
func ArgFloat32(args []any, i int) (float32, bool) {
	if i < 0 || i >= len(args) {
		return 0, false
	}
	switch v := args[i].(type) {
	case float32:
		return v, true
	case int32:
		return float32(v), true
	}
	return 0, false
}

// ArgString returns args[i] as a string.
func ArgString(args []any, i int) (string, bool) {
	if i < 0 || i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

// ArgInt32 returns args[i] as an int32.
func ArgInt32(args []any, i int) (int32, bool) {
	if i < 0 || i >= len(args) {
		return 0, false
	}
	v, ok := args[i].(int32)
	return v, ok
}

// ArgBool returns args[i] as a bool.
func ArgBool(args []any, i int) (bool, bool) {
	if i < 0 || i >= len(args) {
		return false, false
	}
	v, ok := args[i].(bool)
	return v, ok
}
