package verity

import "github.com/xraph/verity/types"

// Re-export common types so callers don't have to import the types package.

// Money is re-exported from the types package.
type Money = types.Money

// Principal is re-exported from the types package.
type Principal = types.Principal

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export Money constructors.
var (
	NewMoney = types.New
	USD      = types.USD
	Zero     = types.Zero
	Sum      = types.Sum
)
