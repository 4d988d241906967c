// internal/controller/gateway/codec.go
package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"makino-adapter/pkg/link"
)

// Magic opens every request and reply frame ("ML")
const Magic uint16 = 0x4D4C

const (
	requestHeaderSize = 8
	replyHeaderSize   = 8
	// maxPayload bounds a reply so a corrupt length cannot allocate unbounded memory
	maxPayload = 1 << 20
)

// Op is a gateway operation code
type Op uint8

const (
	OpAllocHandle       Op = 0x01
	OpFreeHandle        Op = 0x02
	OpLastError         Op = 0x03
	OpMaxAtcMagazine    Op = 0x10
	OpAtcMagazineInfo   Op = 0x11
	OpToolInfo          Op = 0x12
	OpToolLifeInfo      Op = 0x13
	OpAtcRandomMagazine Op = 0x14
	OpReadToolItems     Op = 0x20
	OpReadCutterItems   Op = 0x21
	OpWriteToolItems    Op = 0x22
	OpWriteCutterItems  Op = 0x23
	OpClearToolData     Op = 0x24
	OpSpindleTool       Op = 0x30
	OpPalletNumber      Op = 0x31
	OpMcAlarm           Op = 0x32
	OpOptionalItems     Op = 0x40
	OpLifeType          Op = 0x41
	OpItemsEnabled      Op = 0x42
	OpCncAllocHandle    Op = 0x80
	OpCncFreeHandle     Op = 0x81
	OpCncLastError      Op = 0x82
	OpModalMCode        Op = 0x83
	OpCncAlarm          Op = 0x84
)

var opNames = map[Op]string{
	OpAllocHandle:       "AllocHandle",
	OpFreeHandle:        "FreeHandle",
	OpLastError:         "GetLastError",
	OpMaxAtcMagazine:    "MaxAtcMagazine",
	OpAtcMagazineInfo:   "AtcMagazineInfo",
	OpToolInfo:          "ToolInfo",
	OpToolLifeInfo:      "ToolLifeInfo",
	OpAtcRandomMagazine: "AtcRandomMagazine",
	OpReadToolItems:     "GetToolDataItem",
	OpReadCutterItems:   "GetCutterDataItem",
	OpWriteToolItems:    "SetToolDataItem",
	OpWriteCutterItems:  "SetCutterDataItem",
	OpClearToolData:     "ClearToolData",
	OpSpindleTool:       "SpindleTool",
	OpPalletNumber:      "GetPalletNo",
	OpMcAlarm:           "McAlarm",
	OpOptionalItems:     "OptionalTldtDefine",
	OpLifeType:          "ToollifeInfo",
	OpItemsEnabled:      "ToolDataItemIsEnable",
	OpCncAllocHandle:    "cnc_allclibhndl3",
	OpCncFreeHandle:     "cnc_freelibhndl",
	OpCncLastError:      "cnc_getdtailerr",
	OpModalMCode:        "modal_mcode",
	OpCncAlarm:          "CncAlarm",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(0x%02x)", uint8(o))
}

var errShortPayload = errors.New("short reply payload")

// encodeRequest frames one request: magic, op, protocol version, payload length, payload
func encodeRequest(op Op, version link.Version, payload []byte) []byte {
	frame := make([]byte, 0, requestHeaderSize+len(payload))
	frame = binary.BigEndian.AppendUint16(frame, Magic)
	frame = append(frame, byte(op), byte(version))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	return append(frame, payload...)
}

// decodeReplyHeader parses the magic, result code and payload length of a reply
func decodeReplyHeader(header []byte) (link.ResultCode, int, error) {
	if len(header) != replyHeaderSize {
		return link.CodeInternal, 0, fmt.Errorf("reply header is %d bytes", len(header))
	}
	if magic := binary.BigEndian.Uint16(header[0:2]); magic != Magic {
		return link.CodeInternal, 0, fmt.Errorf("bad reply magic 0x%04x", magic)
	}
	code := link.ResultCode(int16(binary.BigEndian.Uint16(header[2:4])))
	size := binary.BigEndian.Uint32(header[4:8])
	if size > maxPayload {
		return link.CodeInternal, 0, fmt.Errorf("reply payload of %d bytes exceeds limit", size)
	}
	return code, int(size), nil
}

// encoder appends big-endian fields to a payload
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) i32(v int32)  { e.u32(uint32(v)) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
		return
	}
	e.u8(0)
}

func (e *encoder) str(s string) {
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) handle(h link.Handle) { e.u32(uint32(h)) }

func (e *encoder) millis(d time.Duration) { e.u32(uint32(d.Milliseconds())) }

// positions writes the item code, the position count and the key columns
func (e *encoder) positions(item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32) {
	e.i32(int32(item))
	e.u32(uint32(len(magazines)))
	for i := range magazines {
		e.u32(magazines[i])
		e.i32(pots[i])
		if cutters != nil {
			e.u32(cutters[i])
		}
	}
}

// decoder consumes big-endian fields; the first short read sticks in err
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = errShortPayload
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) i16() int16    { return int16(d.u16()) }
func (d *decoder) i32() int32    { return int32(d.u32()) }
func (d *decoder) boolean() bool { return d.u8() != 0 }

// int32s reads a counted column of values and checks it against the expected count
func (d *decoder) int32s(expected int) []int32 {
	n := int(d.u32())
	if d.err == nil && n != expected {
		d.err = fmt.Errorf("reply carries %d values for %d positions", n, expected)
		return nil
	}
	values := make([]int32, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		values = append(values, d.i32())
	}
	return values
}

func (d *decoder) str() string {
	n := int(d.u16())
	if b := d.take(n); b != nil {
		return string(b)
	}
	return ""
}

// systemTime reads year, month, day, hour, minute, second and millisecond in controller local
// time. A zero year means no date.
func (d *decoder) systemTime() time.Time {
	var f [7]int
	for i := range f {
		f[i] = int(d.u16())
	}
	if d.err != nil || f[0] == 0 {
		return time.Time{}
	}
	return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], f[6]*int(time.Millisecond), time.Local)
}

// count reads an element count and bounds it by the bytes left for elements of at least minSize
func (d *decoder) count(n, minSize int) int {
	if d.err == nil && n*minSize > len(d.buf) {
		d.err = fmt.Errorf("reply announces %d elements in %d bytes", n, len(d.buf))
	}
	if d.err != nil {
		return 0
	}
	return n
}
