package constants

// Handler pagination constants
const (
	// DefaultListLimit is the page size for GET /images/all when limit is omitted
	DefaultListLimit = 50

	// MaxListLimit is the largest accepted page size for GET /images/all
	MaxListLimit = 100

	// DebugSampleSize is the number of records shown by the debug endpoint
	DebugSampleSize = 5

	// MaxMultipartMemory is the in-memory budget for parsing multipart forms
	MaxMultipartMemory = 32 << 20
)
