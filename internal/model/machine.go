// internal/model/machine.go
package model

import (
	"time"

	"makino-adapter/pkg/link"
)

// MachineState holds the machine values read once per poll. A nil field could not be read.
type MachineState struct {
	SpindleTool *link.SpindleTool `json:"spindle_tool,omitempty"`
	Pallet      *uint32           `json:"pallet,omitempty"`
	MCode       *link.MCode       `json:"mcode,omitempty"`
	ReadAt      time.Time         `json:"read_at"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// ToolNumber returns the PTN of the spindle tool, 0 when unknown
func (m *MachineState) ToolNumber() uint32 {
	if m == nil || m.SpindleTool == nil {
		return 0
	}
	return m.SpindleTool.PTN
}

// Fail records why a field could not be read
func (m *MachineState) Fail(field string, err error) {
	if m.Errors == nil {
		m.Errors = make(map[string]string)
	}
	m.Errors[field] = err.Error()
}
