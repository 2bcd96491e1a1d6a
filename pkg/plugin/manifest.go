package plugin

// ManifestSymbol is the exported variable a native plugin module must define.
// It must be of type Manifest or *Manifest.
const ManifestSymbol = "Manifest"

// Manifest describes a plugin module: its declared module name and the types
// it exports. A module may export helper types that are not plugins.
type Manifest struct {
	Module string     `json:"module"`
	Types  []TypeSpec `json:"types"`
}

// TypeSpec describes one exported type of a module.
type TypeSpec struct {
	// Name is the fully-qualified type name, e.g. "example.com/greeter.Greeter".
	Name string `json:"name"`

	// Plugin reports whether the type implements the plugin capability.
	Plugin bool `json:"plugin"`

	// Internal types are not visible to the host.
	Internal bool `json:"internal,omitempty"`

	// Abstract types cannot be constructed. A nil New is treated the same.
	Abstract bool `json:"abstract,omitempty"`

	// APIVersion is the host API revision the type targets. Types without
	// an annotation are treated as helpers and never activated.
	APIVersion *APIVersion `json:"api_version,omitempty"`

	New Factory `json:"-"`
}

// Constructible reports whether the host can build an instance of the type.
func (t TypeSpec) Constructible() bool {
	return !t.Abstract && t.New != nil
}
