// internal/model/alarm.go
package model

import (
	"fmt"
	"strconv"

	"makino-adapter/pkg/link"
)

// Alarm sources
const (
	AlarmSourceMachine = "Machine"
	AlarmSourceCnc     = "Cnc"
)

// Numbers in this range are NC alarms relayed by the ProX side; the Cnc channel reports them
const (
	ncAlarmRangeStart uint32 = 135000
	ncAlarmRangeEnd   uint32 = 136000
)

// Alarm is one active alarm with its raw number. Numbers are not translated to text.
type Alarm struct {
	Source          string            `json:"source"`
	Number          string            `json:"number"`
	Message         string            `json:"message,omitempty"`
	ProtocolVersion string            `json:"protocol_version"`
	Properties      map[string]string `json:"properties"`
}

// AlarmList holds the alarms of both channels. A nil list could not be read.
type AlarmList struct {
	Machine []Alarm           `json:"machine"`
	Cnc     []Alarm           `json:"cnc"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Fail records why a channel could not be read
func (l *AlarmList) Fail(channel string, err error) {
	if l.Errors == nil {
		l.Errors = make(map[string]string)
	}
	l.Errors[channel] = err.Error()
}

// NewMachineAlarm describes a ProX machine alarm. It returns false for NC range numbers and for
// unknown alarm types, which are not reported.
func NewMachineAlarm(a link.McAlarm, protocolVersion string) (Alarm, bool) {
	if a.Number >= ncAlarmRangeStart && a.Number < ncAlarmRangeEnd {
		return Alarm{}, false
	}

	props := make(map[string]string, 7)
	switch a.Type {
	case link.McAlarmTypeAlarm:
		props["type"] = "alarm"
	case link.McAlarmTypeWarning:
		props["type"] = "warning"
	default:
		return Alarm{}, false
	}
	props["serious level"] = flag(a.SeriousLevel, "normal", "damage")
	props["power off"] = flag(a.PowerOffDisable, "required", "not required")
	props["cycle start"] = flag(a.CycleStartDisable, "possible", "impossible")
	props["retry"] = flag(a.RetryEnable, "not possible", "possible")
	if a.FailedNcReset {
		props["reset"] = "executed"
	} else {
		props["reset"] = "not executed"
	}
	if !a.OccurredAt.IsZero() {
		props["date"] = a.OccurredAt.Format("2006-01-02 15:04:05.000 -07:00")
	}

	return Alarm{
		Source:          AlarmSourceMachine,
		Number:          strconv.FormatUint(uint64(a.Number), 10),
		ProtocolVersion: protocolVersion,
		Properties:      props,
	}, true
}

// NewCncAlarm describes a Cnc alarm
func NewCncAlarm(a link.CncAlarm, protocolVersion string) Alarm {
	return Alarm{
		Source:          AlarmSourceCnc,
		Number:          strconv.FormatUint(uint64(a.Number), 10),
		Message:         a.Message,
		ProtocolVersion: protocolVersion,
		Properties: map[string]string{
			"axis": strconv.FormatUint(uint64(a.Axis), 10),
			"type": strconv.FormatUint(uint64(a.Type), 10),
		},
	}
}

func flag(v uint8, zero, one string) string {
	switch v {
	case 0:
		return zero
	case 1:
		return one
	default:
		return fmt.Sprintf("unknown (%d)", v)
	}
}
