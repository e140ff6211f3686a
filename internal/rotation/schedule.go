package rotation

import (
	"errors"
	"time"

	"github.com/devletter/newsletterd/internal/model"
)

// DefaultCycleStart anchors the rotation: day zero maps to Rotation[0].
var DefaultCycleStart = time.Date(2025, time.November, 9, 0, 0, 0, 0, time.Local)

var ErrNoCategories = errors.New("rotation: no categories configured")

// Schedule is the derived daily slot. Computed, never persisted.
type Schedule struct {
	PublishDate   time.Time      `json:"publishDate"`
	CycleStart    time.Time      `json:"cycleStartDate"`
	RotationIndex int            `json:"rotationIndex"`
	OffsetDays    int            `json:"offsetDays"`
	Category      model.Category `json:"category"`
	Label         string         `json:"label"`
}

// Compute maps a calendar day onto the category rotation. Pure: no I/O, no
// clock reads beyond the arguments. cycleStart zero value means
// DefaultCycleStart. Dates before the anchor yield negative offsets but the
// rotation index stays in [0, len(Rotation)).
func Compute(date time.Time, cycleStart time.Time) (Schedule, error) {
	if len(model.Rotation) == 0 {
		return Schedule{}, ErrNoCategories
	}
	if cycleStart.IsZero() {
		cycleStart = DefaultCycleStart
	}

	publishDate := StartOfDay(date)
	anchor := StartOfDay(cycleStart)

	offsetDays := int(publishDate.Sub(anchor) / (24 * time.Hour))
	idx := euclidMod(offsetDays, len(model.Rotation))
	category := model.Rotation[idx]

	return Schedule{
		PublishDate:   publishDate,
		CycleStart:    anchor,
		RotationIndex: idx,
		OffsetDays:    offsetDays,
		Category:      category,
		Label:         category.Label(),
	}, nil
}

// StartOfDay truncates to local midnight.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// euclidMod is the non-negative modulo; Go's % truncates toward zero.
func euclidMod(v, n int) int {
	r := v % n
	if r < 0 {
		r += n
	}
	return r
}
