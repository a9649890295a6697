package treesitter

// EntityKind classifies an extracted declaration.
type EntityKind string

const (
	KindFunction  EntityKind = "function"
	KindMethod    EntityKind = "method"
	KindClass     EntityKind = "class"
	KindInterface EntityKind = "interface"
)

// Entity is one declaration extracted from a source file. Method names
// are qualified as Class.method so they stay unique within a file.
type Entity struct {
	Kind      EntityKind
	Name      string
	Parent    string // enclosing class, set for methods
	Signature string
	StartLine int
	EndLine   int

	Extends    []string
	Implements []string
	// Calls holds callee names seen in the body, deduplicated. Member
	// calls keep only the final segment: db.connect() reports connect.
	Calls []string
}

// Import is one module reference extracted from a source file.
type Import struct {
	Path string
	Line int
}

// FileParse is the extraction result for one file.
type FileParse struct {
	Path     string
	Language string
	Entities []Entity
	Imports  []Import
}
