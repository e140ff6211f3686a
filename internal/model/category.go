package model

import "strings"

type Category string

const (
	CategoryBackend  Category = "backend"
	CategoryDatabase Category = "database"
	CategoryNetwork  Category = "network"
	CategoryJava     Category = "java"
	CategorySpring   Category = "spring"
	CategoryDevOps   Category = "devops"
	CategoryFrontend Category = "frontend"
	CategoryAIML     Category = "ai_ml"
)

// Rotation is the fixed category rotation order. It never changes within a
// deployment; the daily schedule is an index into this slice.
var Rotation = []Category{
	CategoryBackend,
	CategoryDatabase,
	CategoryNetwork,
	CategoryJava,
	CategorySpring,
	CategoryDevOps,
	CategoryFrontend,
	CategoryAIML,
}

var categoryLabels = map[Category]string{
	CategoryBackend:  "Backend",
	CategoryDatabase: "Database",
	CategoryNetwork:  "Network",
	CategoryJava:     "Java",
	CategorySpring:   "Spring",
	CategoryDevOps:   "DevOps",
	CategoryFrontend: "Frontend",
	CategoryAIML:     "AI/ML",
}

func (c Category) String() string { return string(c) }

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the subscriber-facing interest label for the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory resolves either the enum value or the interest label.
// Returns (value, true) if recognized.
func ParseCategory(s string) (Category, bool) {
	in := strings.TrimSpace(s)
	c := Category(strings.ToLower(in))
	if c.Valid() {
		return c, true
	}
	for cat, label := range categoryLabels {
		if strings.EqualFold(label, in) {
			return cat, true
		}
	}
	return "", false
}

// CategoryByLabel maps an interest label back to its category.
func CategoryByLabel(label string) (Category, bool) {
	return ParseCategory(label)
}
