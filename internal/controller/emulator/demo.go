// internal/controller/emulator/demo.go
package emulator

import (
	"time"

	"makino-adapter/pkg/link"
)

// Demo creates a controller with two magazines and a populated tool table
func Demo(v link.Version, inch bool) *Controller {
	c := New(Config{
		Version:         v,
		Inch:            inch,
		CountDown:       false,
		Optional:        link.OptionalItems{Slow: true},
		LifeType:        link.LifeTypeSeconds,
		PotsPerMagazine: []int{6, 4},
		CuttersPerPot:   1,
	})

	for m := uint32(1); m <= 2; m++ {
		pots := 6
		if m == 2 {
			pots = 4
		}
		for p := int32(1); p <= int32(pots); p++ {
			pos := link.ToolPosition{Magazine: m, Pot: p, Cutter: 1}
			ptn := int32(m)*100 + p
			used := p * 600
			var alarm int32
			if p == 5 {
				alarm = link.AlarmBitExpired
				used = 36000
			}

			if v == link.Version3 {
				c.SetToolItem(m, p, link.Pro3PTN, ptn)
				c.SetToolItem(m, p, link.Pro3Slow, p%2)
				c.SetCutterItem(pos, link.Pro3Alarm, alarm)
				c.SetCutterItem(pos, link.Pro3Len, 1500000+p*1000)
				c.SetCutterItem(pos, link.Pro3Dia, 100000+p*500)
				c.SetCutterItem(pos, link.Pro3TL, 36000)
				c.SetCutterItem(pos, link.Pro3Remain, used)
				continue
			}

			c.SetToolItem(m, p, link.Pro5PTN, ptn)
			c.SetToolItem(m, p, link.Pro5AtcSpeed, p%3)
			c.SetCutterItem(pos, link.Pro5AlarmFlag, alarm)
			if p == 1 {
				c.SetCutterItem(pos, link.Pro5FirstUse, 1)
			}
			c.SetCutterItem(pos, link.Pro5HGeometry, 15000000+p*10000)
			c.SetCutterItem(pos, link.Pro5DGeometry, 1000000+p*5000)
			c.SetCutterItem(pos, link.Pro5ManageLifeTime, 1)
			c.SetCutterItem(pos, link.Pro5LifeTimeAlarm, 360000)
			c.SetCutterItem(pos, link.Pro5LifeTimeWarning, 300000)
			c.SetCutterItem(pos, link.Pro5LifeTimeActual, used*10)
			if m == 1 {
				c.SetCutterItem(pos, link.Pro5ManageLifeCount, 1)
				c.SetCutterItem(pos, link.Pro5LifeCountAlarm, 500)
				c.SetCutterItem(pos, link.Pro5LifeCountActual, p*10)
			}
		}
	}

	c.SetSpindleTool(link.SpindleTool{Magazine: 1, Pot: 2, Cutter: 1, PTN: 102})
	c.SetPallet(1)
	c.SetMCode(link.MCode{Code: 6, Requested: true})
	c.SetMcAlarms(
		link.McAlarm{
			Number:          2041,
			Type:            link.McAlarmTypeWarning,
			PowerOffDisable: 1,
			RetryEnable:     1,
			OccurredAt:      time.Date(2024, time.March, 1, 8, 30, 0, 0, time.Local),
		},
		link.McAlarm{Number: 135010, Type: link.McAlarmTypeAlarm},
	)
	c.SetCncAlarms(link.CncAlarm{Number: 1001, Axis: 2, Message: "OVER TRAVEL +Y", Type: 4})
	return c
}
