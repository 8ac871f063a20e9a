package domain

import "fmt"

// Category is the fixed set of city service categories a query can be routed to.
type Category string

const (
	CategorySchedule  Category = "schedule"
	CategoryEvent     Category = "event"
	CategoryReport    Category = "report"
	CategoryPermit    Category = "permit"
	CategoryEmergency Category = "emergency"
	CategoryGeneral   Category = "general"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategorySchedule,
	CategoryEvent,
	CategoryReport,
	CategoryPermit,
	CategoryEmergency,
	CategoryGeneral,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory converts s to a Category, rejecting unknown values.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
	}
	return c, nil
}

// CategoryNames returns the string form of every category.
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}

// EntityType is the kind of entity extracted from a query.
type EntityType string

const (
	EntityDate        EntityType = "date"
	EntityLocation    EntityType = "location"
	EntityServiceType EntityType = "service_type"
	EntityDepartment  EntityType = "department"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityDate, EntityLocation, EntityServiceType, EntityDepartment:
		return true
	}
	return false
}
