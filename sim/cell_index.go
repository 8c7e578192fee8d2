package sim

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CellIndex is the stable identity of a cell: its layer and its position
// within that layer. The textual form is "<layer>-<cell>".
type CellIndex struct {
	Layer int `json:"layer"`
	Cell  int `json:"cell"`
}

func (i CellIndex) String() string {
	return strconv.Itoa(i.Layer) + "-" + strconv.Itoa(i.Cell)
}

// ParseCellIndex parses the "<layer>-<cell>" form.
func ParseCellIndex(s string) (CellIndex, error) {
	layerStr, cellStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return CellIndex{}, fmt.Errorf("%w: cell index %q: expected <layer>-<cell>", ErrMalformedIndices, s)
	}
	layer, err := strconv.Atoi(layerStr)
	if err != nil || layer < 0 {
		return CellIndex{}, fmt.Errorf("%w: cell index %q: invalid layer", ErrMalformedIndices, s)
	}
	cell, err := strconv.Atoi(cellStr)
	if err != nil || cell < 0 {
		return CellIndex{}, fmt.Errorf("%w: cell index %q: invalid cell", ErrMalformedIndices, s)
	}
	return CellIndex{Layer: layer, Cell: cell}, nil
}

// MarshalText lets CellIndex serve as a JSON object key.
func (i CellIndex) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText parses a JSON object key.
func (i *CellIndex) UnmarshalText(b []byte) error {
	parsed, err := ParseCellIndex(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// cellIndexObject breaks the MarshalJSON recursion.
type cellIndexObject struct {
	Layer int `json:"layer"`
	Cell  int `json:"cell"`
}

// MarshalJSON keeps the {"layer","cell"} object form for values; map keys
// use MarshalText.
func (i CellIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(cellIndexObject(i))
}

// UnmarshalJSON accepts either the object form or the "<layer>-<cell>" string.
func (i *CellIndex) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return i.UnmarshalText([]byte(s))
	}
	var obj cellIndexObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Layer < 0 || obj.Cell < 0 {
		return fmt.Errorf("cell index %d-%d: negative component", obj.Layer, obj.Cell)
	}
	*i = CellIndex(obj)
	return nil
}

// ParseCellIndexList parses a comma-separated list of cell indices.
func ParseCellIndexList(s string) ([]CellIndex, error) {
	var out []CellIndex
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		idx, err := ParseCellIndex(part)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}
