package verity

import "github.com/xraph/verity/id"

// ID is the opaque identifier type for every Verity record.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
