package alert

import "time"

// Action is a VTEC action code.
type Action string

const (
	ActionNew      Action = "NEW"
	ActionContinue Action = "CON"
	ActionExtend   Action = "EXT"
	ActionExpandA  Action = "EXA"
	ActionExpandB  Action = "EXB"
	ActionUpgrade  Action = "UPG"
	ActionCancel   Action = "CAN"
	ActionExpire   Action = "EXP"
	ActionCorrect  Action = "COR"
	ActionRoutine  Action = "ROU"
)

// VTEC is a decoded Valid Time Event Code, e.g.
// /O.NEW.KSGX.TO.W.0002.260213T0340Z-260213T0415Z/
type VTEC struct {
	ProductClass        string // O, T, E, X
	Action              Action
	Office              string // four-letter issuing office
	Phenomena           string // two alpha
	Significance        string // one alpha
	EventTrackingNumber string // four digits
	Start               time.Time
	End                 time.Time
	Raw                 string
}

// Key is the identity tuple used for matching CAN/EXP products against
// stored alerts.
type Key struct {
	Office              string
	Phenomena           string
	Significance        string
	EventTrackingNumber string
}

// Key returns the VTEC identity tuple.
func (v *VTEC) Key() Key {
	return Key{
		Office:              v.Office,
		Phenomena:           v.Phenomena,
		Significance:        v.Significance,
		EventTrackingNumber: v.EventTrackingNumber,
	}
}

// ID renders the canonical alert identity office.phenomena.significance.etn.
func (v *VTEC) ID() string {
	return v.Office + "." + v.Phenomena + "." + v.Significance + "." + v.EventTrackingNumber
}
