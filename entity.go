package recur

import "github.com/xraph/recur/internal/entity"

// Entity is the base type embedded by rules and events.
type Entity = entity.Entity

// NewEntity returns an Entity with both timestamps set to the current UTC time.
func NewEntity() Entity {
	return entity.New()
}
