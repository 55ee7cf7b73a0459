package evalqueue

import "github.com/aliendabz/evalqueue/id"

// ID is the primary identifier type for all evalqueue entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
