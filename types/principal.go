package types

// Principal is an authenticated caller identity: an account address, a
// service name or a JWT subject. The engine never derives it implicitly.
type Principal string

// System is the principal the engine uses for its own internal calls.
const System Principal = "verity:system"

// IsZero reports whether p is empty.
func (p Principal) IsZero() bool { return p == "" }

func (p Principal) String() string { return string(p) }
