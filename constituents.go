package harmonica

import (
	"encoding/json"
	"strings"
)

// ConstituentTable is an insertion-ordered set of ConstituentRecords keyed by
// constituent name. The zero value is an empty table ready to use.
type ConstituentTable struct {
	order []string
	rows  map[string]ConstituentRecord
}

// NewConstituentTable returns an empty table.
func NewConstituentTable() *ConstituentTable {
	return &ConstituentTable{rows: make(map[string]ConstituentRecord)}
}

// Set stores rec under rec.Name. A name already present keeps its position
// and takes the new values.
func (t *ConstituentTable) Set(rec ConstituentRecord) {
	if t.rows == nil {
		t.rows = make(map[string]ConstituentRecord)
	}
	if _, ok := t.rows[rec.Name]; !ok {
		t.order = append(t.order, rec.Name)
	}
	t.rows[rec.Name] = rec
}

// Get returns the record for name, matched case-insensitively.
func (t *ConstituentTable) Get(name string) (ConstituentRecord, bool) {
	rec, ok := t.rows[strings.ToUpper(name)]
	return rec, ok
}

// Names returns the constituent names in insertion order.
func (t *ConstituentTable) Names() []string {
	return append([]string(nil), t.order...)
}

// Records returns the records in insertion order.
func (t *ConstituentTable) Records() []ConstituentRecord {
	out := make([]ConstituentRecord, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.rows[name])
	}
	return out
}

// Len returns the number of records.
func (t *ConstituentTable) Len() int {
	return len(t.order)
}

// MarshalJSON encodes the table as an ordered array of records.
func (t *ConstituentTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Records())
}

// components converts the table for the analysis collaborator.
func (t *ConstituentTable) components() []Component {
	out := make([]Component, 0, t.Len())
	for _, rec := range t.Records() {
		out = append(out, Component{
			Name:      rec.Name,
			Speed:     rec.Speed,
			Amplitude: rec.Amplitude,
			Phase:     rec.Phase,
		})
	}
	return out
}
