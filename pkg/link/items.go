// pkg/link/items.go
package link

import "fmt"

// ItemCode is a numbered tool or cutter data item. The numbering depends on the protocol version.
type ItemCode int32

// CutterItemThreshold separates tool items (keyed by magazine/pot) from cutter items
const CutterItemThreshold ItemCode = 100

// IsCutterItem reports whether the item is keyed by magazine, pot and cutter
func (i ItemCode) IsCutterItem() bool {
	return i >= CutterItemThreshold
}

// Pro3 tool data items
const (
	Pro3PTN      ItemCode = 1
	Pro3ITN      ItemCode = 2
	Pro3TL       ItemCode = 3
	Pro3Remain   ItemCode = 4
	Pro3Len      ItemCode = 5
	Pro3Dia      ItemCode = 6
	Pro3FTN      ItemCode = 7
	Pro3Type     ItemCode = 8
	Pro3Alarm    ItemCode = 9
	Pro3AC       ItemCode = 10
	Pro3SL       ItemCode = 11
	Pro3MMCType  ItemCode = 12
	Pro3MMCState ItemCode = 13
	Pro3MMCSize  ItemCode = 14
	Pro3BTS      ItemCode = 15
	Pro3BTSFirst ItemCode = 16
	Pro3BTSSec   ItemCode = 17
	Pro3Air      ItemCode = 18
	Pro3Slow     ItemCode = 19
	Pro3BTSLen   ItemCode = 20
	Pro3BTSType  ItemCode = 21
)

// Pro3Enabled derives the fixed Pro3 capability table from the optional items probe
func Pro3Enabled(opt OptionalItems) map[ItemCode]bool {
	return map[ItemCode]bool{
		Pro3PTN:      true,
		Pro3ITN:      true,
		Pro3TL:       true,
		Pro3Remain:   true,
		Pro3Len:      true,
		Pro3Dia:      true,
		Pro3FTN:      true,
		Pro3Type:     true,
		Pro3Alarm:    true,
		Pro3AC:       true,
		Pro3SL:       true,
		Pro3MMCType:  opt.MMC,
		Pro3MMCState: opt.MMC,
		Pro3MMCSize:  opt.MMC,
		Pro3BTS:      opt.BTS,
		Pro3BTSFirst: opt.BTS,
		Pro3BTSSec:   opt.BTS,
		Pro3Air:      opt.Air,
		Pro3Slow:     opt.Slow,
		Pro3BTSLen:   opt.BTSLen,
		Pro3BTSType:  opt.BTS,
	}
}

// Pro5/Pro6 tool items
const (
	Pro5Magazine    ItemCode = 1
	Pro5Pot         ItemCode = 2
	Pro5PTN         ItemCode = 4
	Pro5FTN         ItemCode = 5
	Pro5ITN         ItemCode = 6
	Pro5AtcSpeed    ItemCode = 11
	Pro5TotalCutter ItemCode = 15
)

// Pro5/Pro6 cutter items
const (
	Pro5CutterNo         ItemCode = 101
	Pro5HGeometry        ItemCode = 103
	Pro5HWear            ItemCode = 104
	Pro5DGeometry        ItemCode = 105
	Pro5DWear            ItemCode = 106
	Pro5ManageLifeTime   ItemCode = 107
	Pro5LifeTimeAlarm    ItemCode = 108
	Pro5LifeTimeWarning  ItemCode = 109
	Pro5LifeTimeActual   ItemCode = 110
	Pro5ManageLifeDist   ItemCode = 111
	Pro5LifeDistAlarm    ItemCode = 112
	Pro5LifeDistWarning  ItemCode = 113
	Pro5LifeDistActual   ItemCode = 114
	Pro5ManageLifeCount  ItemCode = 115
	Pro5LifeCountAlarm   ItemCode = 116
	Pro5LifeCountWarning ItemCode = 117
	Pro5LifeCountActual  ItemCode = 118
	Pro5AlarmFlag        ItemCode = 122
	Pro5WarningFlag      ItemCode = 123
	Pro5FirstUse         ItemCode = 129
)

// Pro5AcquisitionItems is the list checked with ItemsEnabled once per session
var Pro5AcquisitionItems = []ItemCode{
	Pro5PTN,
	Pro5ManageLifeTime, Pro5LifeTimeAlarm, Pro5LifeTimeWarning, Pro5LifeTimeActual,
	Pro5ManageLifeDist, Pro5LifeDistAlarm, Pro5LifeDistWarning, Pro5LifeDistActual,
	Pro5ManageLifeCount, Pro5LifeCountAlarm, Pro5LifeCountWarning, Pro5LifeCountActual,
	Pro5AlarmFlag,
	Pro5FirstUse,
	Pro5HGeometry, Pro5DGeometry,
	Pro5AtcSpeed,
}

// Alarm flag bits
const (
	AlarmBitBroken1 int32 = 0x01
	AlarmBitBroken2 int32 = 0x02
	AlarmBitExpired int32 = 0x20
)

// ItemName returns a readable name for logs
func ItemName(v Version, item ItemCode) string {
	var names map[ItemCode]string
	if v == Version3 {
		names = pro3Names
	} else {
		names = pro5Names
	}
	if name, ok := names[item]; ok {
		return name
	}
	return fmt.Sprintf("item(%d)", int32(item))
}

var pro3Names = map[ItemCode]string{
	Pro3PTN:      "TD_PTN",
	Pro3ITN:      "TD_ITN",
	Pro3TL:       "TD_TL",
	Pro3Remain:   "TD_REMAIN",
	Pro3Len:      "TD_LEN",
	Pro3Dia:      "TD_DIA",
	Pro3FTN:      "TD_FTN",
	Pro3Alarm:    "TD_ALM",
	Pro3Type:     "TD_TYPE",
	Pro3AC:       "TD_AC",
	Pro3SL:       "TD_SL",
	Pro3MMCType:  "TD_MMC_TYPE",
	Pro3MMCState: "TD_MMC_STATE",
	Pro3MMCSize:  "TD_MMC_SIZE",
	Pro3BTS:      "TD_BTS",
	Pro3BTSFirst: "TD_BTS_FIRST",
	Pro3BTSSec:   "TD_BTS_SEC",
	Pro3Air:      "TD_AIR",
	Pro3Slow:     "TD_SLOW",
	Pro3BTSLen:   "TD_BTS_LEN",
	Pro3BTSType:  "TD_BTS_TYPE",
}

var pro5Names = map[ItemCode]string{
	Pro5Magazine:         "Magazine",
	Pro5Pot:              "Pot",
	Pro5PTN:              "PTN",
	Pro5FTN:              "FTN",
	Pro5ITN:              "ITN",
	Pro5CutterNo:         "CutterNo",
	Pro5HWear:            "HWear",
	Pro5DWear:            "DWear",
	Pro5WarningFlag:      "WarningFlag",
	Pro5AtcSpeed:         "AtcSpeed",
	Pro5TotalCutter:      "TotalCutter",
	Pro5HGeometry:        "HGeometry",
	Pro5DGeometry:        "DGeometry",
	Pro5ManageLifeTime:   "ManageLifeTime",
	Pro5LifeTimeAlarm:    "LifeTimeAlarm",
	Pro5LifeTimeWarning:  "LifeTimeWarning",
	Pro5LifeTimeActual:   "LifeTimeActual",
	Pro5ManageLifeDist:   "ManageLifeDist",
	Pro5LifeDistAlarm:    "LifeDistAlarm",
	Pro5LifeDistWarning:  "LifeDistWarning",
	Pro5LifeDistActual:   "LifeDistActual",
	Pro5ManageLifeCount:  "ManageLifeCount",
	Pro5LifeCountAlarm:   "LifeCountAlarm",
	Pro5LifeCountWarning: "LifeCountWarning",
	Pro5LifeCountActual:  "LifeCountActual",
	Pro5AlarmFlag:        "AlarmFlag",
	Pro5FirstUse:         "FirstUse",
}

// KnownItems lists every item code defined for the version, in ascending order
func KnownItems(v Version) []ItemCode {
	if v == Version3 {
		items := make([]ItemCode, 0, Pro3BTSType)
		for i := Pro3PTN; i <= Pro3BTSType; i++ {
			items = append(items, i)
		}
		return items
	}
	return []ItemCode{
		Pro5Magazine, Pro5Pot, Pro5PTN, Pro5FTN, Pro5ITN, Pro5AtcSpeed, Pro5TotalCutter,
		Pro5CutterNo, Pro5HGeometry, Pro5HWear, Pro5DGeometry, Pro5DWear,
		Pro5ManageLifeTime, Pro5LifeTimeAlarm, Pro5LifeTimeWarning, Pro5LifeTimeActual,
		Pro5ManageLifeDist, Pro5LifeDistAlarm, Pro5LifeDistWarning, Pro5LifeDistActual,
		Pro5ManageLifeCount, Pro5LifeCountAlarm, Pro5LifeCountWarning, Pro5LifeCountActual,
		Pro5AlarmFlag, Pro5WarningFlag, Pro5FirstUse,
	}
}
