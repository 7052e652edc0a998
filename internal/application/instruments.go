package application

import (
	"strconv"
	"strings"
)

// Instrument is an assignable role on a service.
type Instrument struct {
	ID        string
	NameEn    string
	NameLocal string
	Emoji     string
}

// DefaultInstruments is the catalogue used when a team has not customised its roles.
var DefaultInstruments = []Instrument{
	{ID: "leader", NameEn: "Worship Leader", NameLocal: "Worship Leader", Emoji: "🎤"},
	{ID: "vocals", NameEn: "Vocals", NameLocal: "Vocals", Emoji: "🎙️"},
	{ID: "acoustic", NameEn: "Acoustic Guitar", NameLocal: "Acoustic Guitar", Emoji: "🎸"},
	{ID: "electric", NameEn: "Electric Guitar", NameLocal: "Electric Guitar", Emoji: "🎸"},
	{ID: "bass", NameEn: "Bass", NameLocal: "Bass", Emoji: "🎸"},
	{ID: "keys", NameEn: "Keys", NameLocal: "Keys", Emoji: "🎹"},
	{ID: "drums", NameEn: "Drums", NameLocal: "Drums", Emoji: "🥁"},
	{ID: "sound", NameEn: "Sound", NameLocal: "Sound", Emoji: "🎚️"},
	{ID: "media", NameEn: "Media", NameLocal: "Media", Emoji: "💻"},
}

// InstrumentCatalogue resolves instrument ids to display data.
type InstrumentCatalogue struct {
	byID  map[string]Instrument
	order []string
}

// NewInstrumentCatalogue indexes instruments. Later duplicates of an id are ignored.
func NewInstrumentCatalogue(instruments []Instrument) InstrumentCatalogue {
	catalogue := InstrumentCatalogue{byID: make(map[string]Instrument, len(instruments))}
	for _, inst := range instruments {
		if _, ok := catalogue.byID[inst.ID]; ok {
			continue
		}
		catalogue.byID[inst.ID] = inst
		catalogue.order = append(catalogue.order, inst.ID)
	}
	return catalogue
}

// Lookup returns the instrument for id, synthesising one for unknown ids.
func (c InstrumentCatalogue) Lookup(id string) Instrument {
	if inst, ok := c.byID[id]; ok {
		return inst
	}
	return Instrument{ID: id, NameEn: id, NameLocal: id}
}

// All returns the catalogue in declaration order.
func (c InstrumentCatalogue) All() []Instrument {
	out := make([]Instrument, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// SlotKey names the ordinal-th slot of an instrument, e.g. "vocals1".
func SlotKey(instrumentID string, ordinal int) string {
	return instrumentID + strconv.Itoa(ordinal)
}

// InstrumentFromSlot strips the trailing slot ordinal.
func InstrumentFromSlot(slot string) string {
	trimmed := strings.TrimRightFunc(slot, func(r rune) bool { return r >= '0' && r <= '9' })
	if trimmed == "" {
		return slot
	}
	return trimmed
}
