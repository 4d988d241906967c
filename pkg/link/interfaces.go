// pkg/link/interfaces.go
package link

import "context"

// ProXLink is implemented once per ProX protocol generation. Calls are blocking round-trips;
// failures are returned as *Error carrying the controller result code.
type ProXLink interface {
	Version() Version

	// Connection management
	AllocHandle(ctx context.Context, node NodeInfo, timeouts Timeouts) (Handle, error)
	FreeHandle(ctx context.Context, h Handle) error
	LastError(ctx context.Context) (main, sub int32, err error)

	// Topology
	MaxAtcMagazine(ctx context.Context, h Handle) (uint32, error)
	AtcMagazineInfo(ctx context.Context, h Handle, magazine uint32) (MagazineInfo, error)

	// Configuration
	ToolInfo(ctx context.Context, h Handle) (ToolInfo, error)
	ToolLifeInfo(ctx context.Context, h Handle) (ToolLifeInfo, error)
	AtcRandomMagazine(ctx context.Context, h Handle) (bool, error)

	// Bulk data items
	ReadToolItems(ctx context.Context, h Handle, item ItemCode, magazines []uint32, pots []int32) ([]int32, error)
	ReadCutterItems(ctx context.Context, h Handle, item ItemCode, magazines []uint32, pots []int32, cutters []uint32) ([]int32, error)
	WriteToolItems(ctx context.Context, h Handle, item ItemCode, magazines []uint32, pots []int32, values []int32) error
	WriteCutterItems(ctx context.Context, h Handle, item ItemCode, magazines []uint32, pots []int32, cutters []uint32, values []int32) error
	ClearToolData(ctx context.Context, h Handle, magazines []uint32, pots []int32) error

	// Machine state
	SpindleTool(ctx context.Context, h Handle) (SpindleTool, error)
	PalletNumber(ctx context.Context, h Handle, device, deviceNo, position uint32) (uint32, error)
	McAlarms(ctx context.Context, h Handle) ([]McAlarm, error)
}

// Pro3Link is the Pro3 generation, with a static optional item table and a global life type
type Pro3Link interface {
	ProXLink

	OptionalItems(ctx context.Context, h Handle) (OptionalItems, error)
	LifeType(ctx context.Context, h Handle) (LifeType, error)
}

// Pro5Link is the Pro5 and Pro6 generations, which report item availability dynamically
type Pro5Link interface {
	ProXLink

	ItemsEnabled(ctx context.Context, h Handle, items []ItemCode) ([]bool, error)
}

// CncLink is the Cnc execution side, which has a single protocol generation
type CncLink interface {
	AllocHandle(ctx context.Context, node NodeInfo, timeout Timeouts) (Handle, error)
	FreeHandle(ctx context.Context, h Handle) error
	LastError(ctx context.Context) (main, sub int32, err error)

	ModalMCode(ctx context.Context, h Handle) (MCode, error)
	CncAlarms(ctx context.Context, h Handle) ([]CncAlarm, error)
}
