// pkg/link/types.go
package link

import (
	"fmt"
	"time"
)

// Version identifies a ProX protocol generation
type Version int

const (
	VersionUnknown Version = 0
	Version3       Version = 3
	Version5       Version = 5
	Version6       Version = 6
)

// ProbeOrder is the order in which generations are tried when the version is not pinned
var ProbeOrder = []Version{Version6, Version5, Version3}

// String returns the controller family name of the version
func (v Version) String() string {
	switch v {
	case Version3, Version5, Version6:
		return fmt.Sprintf("Pro%d", int(v))
	default:
		return "unknown"
	}
}

// IsValid reports whether v is one of the supported generations
func (v Version) IsValid() bool {
	return v == Version3 || v == Version5 || v == Version6
}

// ParseVersion converts a configured version number, 0 meaning auto-detection
func ParseVersion(n int) (Version, error) {
	v := Version(n)
	if v == VersionUnknown || v.IsValid() {
		return v, nil
	}
	return VersionUnknown, fmt.Errorf("invalid ProX version %d", n)
}

// Channel identifies an independent connection path to the controller
type Channel string

const (
	ChannelProX Channel = "prox"
	ChannelCnc  Channel = "cnc"
)

// Handle is the opaque session token returned by AllocHandle
type Handle uint32

// InvalidHandle marks the absence of an allocated handle
const InvalidHandle Handle = 0

// Valid reports whether the handle was allocated
func (h Handle) Valid() bool {
	return h != InvalidHandle
}

// Default controller ports
const (
	DefaultProXPort   = 11212
	DefaultCncPort    = 8193
	DefaultNodeNumber = 8
)

// NodeInfo addresses one controller side
type NodeInfo struct {
	NodeNumber int
	IPAddress  string
	Port       int
	Emulate    bool
}

// String renders the node info as "node/ip/port/emulate"
func (n NodeInfo) String() string {
	emulate := 0
	if n.Emulate {
		emulate = 1
	}
	return fmt.Sprintf("%d/%s/%d/%d", n.NodeNumber, n.IPAddress, n.Port, emulate)
}

// Timeouts are forwarded to the link on AllocHandle
type Timeouts struct {
	Send      time.Duration
	Reply     time.Duration
	NoopCycle time.Duration
	LogLevel  uint8
}

// ToolPosition is one cutter location in the tool storage
type ToolPosition struct {
	Magazine uint32 `json:"magazine"`
	Pot      int32  `json:"pot"`
	Cutter   uint32 `json:"cutter"`
}

// String formats the position for logs and tool listings
func (p ToolPosition) String() string {
	return fmt.Sprintf("Magazine %d pot %d cutter %d", p.Magazine, p.Pot, p.Cutter)
}

// Less orders positions by magazine, then pot, then cutter
func (p ToolPosition) Less(o ToolPosition) bool {
	if p.Magazine != o.Magazine {
		return p.Magazine < o.Magazine
	}
	if p.Pot != o.Pot {
		return p.Pot < o.Pot
	}
	return p.Cutter < o.Cutter
}

// MagazineInfo describes one ATC magazine
type MagazineInfo struct {
	MaxPot   uint32
	Type     int32
	EmptyPot uint32
}

// ToolInfo is the tool configuration of the controller
type ToolInfo struct {
	Inch       bool
	FTNDigits  uint32
	ITNDigits  uint32
	PTNDigits  uint32
	ManageType uint32
}

// ToolLifeInfo holds the global tool life settings
type ToolLifeInfo struct {
	// CountDown is true when the life value counts down to zero
	CountDown         bool
	AlarmResetMaxLife bool
}

// SpindleTool is the tool currently mounted on the spindle
type SpindleTool struct {
	Magazine uint32 `json:"magazine"`
	Pot      int32  `json:"pot"`
	Cutter   uint32 `json:"cutter"`
	FTN      uint32 `json:"ftn"`
	ITN      uint32 `json:"itn"`
	PTN      uint32 `json:"ptn"`
}

// OptionalItems are the optional tool data groups of a Pro3 controller
type OptionalItems struct {
	MMC    bool
	BTS    bool
	Air    bool
	Slow   bool
	BTSLen bool
}

// LifeType is the global tool life unit of a Pro3 controller
type LifeType int16

const (
	LifeTypeSeconds      LifeType = 0
	LifeTypeDistance     LifeType = 1
	LifeTypeCount        LifeType = 2
	LifeTypeTenthSeconds LifeType = 3
)

// MCode is the modal M code of the Cnc side
type MCode struct {
	Code uint32 `json:"code"`
	// Requested is true when the code belongs to the block being executed
	Requested bool `json:"requested"`
}

// Machine alarm types
const (
	McAlarmTypeAlarm   uint8 = 1
	McAlarmTypeWarning uint8 = 2
)

// McAlarm is one machine alarm or warning of the ProX side, as the controller reports it
type McAlarm struct {
	Number            uint32 `json:"number"`
	Type              uint8  `json:"type"`
	SeriousLevel      uint8  `json:"serious_level"`
	PowerOffDisable   uint8  `json:"power_off_disable"`
	CycleStartDisable uint8  `json:"cycle_start_disable"`
	RetryEnable       uint8  `json:"retry_enable"`
	FailedNcReset     bool   `json:"failed_nc_reset"`
	// OccurredAt is zero when the controller reports no date
	OccurredAt time.Time `json:"occurred_at"`
}

// CncAlarm is one alarm of the Cnc side
type CncAlarm struct {
	Number  uint16 `json:"number"`
	Axis    uint16 `json:"axis"`
	Message string `json:"message"`
	Type    uint16 `json:"type"`
}

// Pallet device addressing
const (
	PalletDeviceMachine   uint32 = 3
	PalletPositionTable   uint32 = 1
	PalletDefaultDeviceNo uint32 = 0
)
