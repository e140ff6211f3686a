package qa

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Pair is a single question/answer entry of an issue. Immutable once attached
// to an issue's content list.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PairList is stored as a JSON column on the issues table.
type PairList []Pair

func (p PairList) Value() (driver.Value, error) {
	if p == nil {
		p = PairList{}
	}
	return json.Marshal(p)
}

func (p *PairList) Scan(src any) error {
	if src == nil {
		*p = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("qa: cannot scan %T into PairList", src)
	}
	return json.Unmarshal(raw, p)
}
