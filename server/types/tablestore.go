package types

// TableStoreError is the error body of the table store API.
type TableStoreError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Prefer header values understood by the table store API.
const (
	PreferRepresentation = "return=representation"
	PreferMinimal        = "return=minimal"
)

// Filter operator keywords of the table store API.
const (
	FilterEq    = "eq"
	FilterGte   = "gte"
	FilterLte   = "lte"
	FilterGt    = "gt"
	FilterLt    = "lt"
	FilterIs    = "is"
	FilterNotIs = "not.is"
)
