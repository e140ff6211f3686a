package model

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Interests is the subscriber's set of interest labels, stored as a JSON
// array column.
type Interests []string

func (i Interests) Value() (driver.Value, error) {
	if i == nil {
		i = Interests{}
	}
	return json.Marshal(i)
}

func (i *Interests) Scan(src any) error {
	if src == nil {
		*i = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into Interests", src)
	}
	return json.Unmarshal(raw, i)
}

// Has reports whether the label is in the interest set.
func (i Interests) Has(label string) bool {
	for _, v := range i {
		if v == label {
			return true
		}
	}
	return false
}

type Subscriber struct {
	ID               string       `db:"id"`
	Email            string       `db:"email"`
	Interests        Interests    `db:"interests"`
	LastSentAt       sql.NullTime `db:"last_sent_at"`
	UnsubscribedAt   sql.NullTime `db:"unsubscribed_at"`
	UnsubscribeToken string       `db:"unsubscribe_token"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}
