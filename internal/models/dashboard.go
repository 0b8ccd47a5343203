package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Dashboard is the presentation-ready analysis result for one session.
type Dashboard struct {
	StartupName     string          `json:"startupName"`
	Summary         string          `json:"summary"`
	DetailedSummary string          `json:"detailed_summary"`
	PeerComparison  *PeerComparison `json:"peer_comparison_table"`
	Extracted       Grouped         `json:"extracted"`
	GCSKey          string          `json:"gcsKey"`
	FilesProcessed  int             `json:"filesProcessed"`
	FilesInfo       json.RawMessage `json:"filesInfo,omitempty"`
	Stored          bool            `json:"stored"`
	ResponseTime    float64         `json:"responseTime"`
}

// PeerComparison mirrors the upstream peer table: {"comparison": {"columns": [...], "companies": [...]}}.
type PeerComparison struct {
	Comparison *PeerTable `json:"comparison"`
}

type PeerTable struct {
	Columns   []string         `json:"columns"`
	Companies []map[string]any `json:"companies"`
}

// Field is one labelled value of a group. Value is nil when upstream did not report it.
type Field struct {
	Key   string
	Value any
}

// Group is an ordered list of fields under a display heading.
type Group struct {
	Name   string
	Fields []Field
}

// Get returns the value stored under key.
func (g Group) Get(key string) (any, bool) {
	for _, f := range g.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Grouped is the ordered set of extracted-data groups.
type Grouped []Group

// Group returns the group with the given name.
func (g Grouped) Group(name string) (Group, bool) {
	for _, grp := range g {
		if grp.Name == name {
			return grp, true
		}
	}
	return Group{}, false
}

// MarshalJSON renders groups as a JSON object that keeps the display order.
func (g Grouped) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, grp := range g {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, err := json.Marshal(grp.Name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, name...)
		buf = append(buf, ':', '{')
		for j, f := range grp.Fields {
			if j > 0 {
				buf = append(buf, ',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(f.Value)
			if err != nil {
				return nil, err
			}
			buf = append(buf, key...)
			buf = append(buf, ':')
			buf = append(buf, val...)
		}
		buf = append(buf, '}')
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON reads the object form written by MarshalJSON, keeping key order.
func (g *Grouped) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	var out Grouped
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return err
		}
		grp := Group{Name: name}
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		for dec.More() {
			key, err := readKey(dec)
			if err != nil {
				return err
			}
			var val any
			if err := dec.Decode(&val); err != nil {
				return err
			}
			grp.Fields = append(grp.Fields, Field{Key: key, Value: val})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
		out = append(out, grp)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	*g = out
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("grouped: expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("grouped: expected object key, got %v", tok)
	}
	return key, nil
}
