package models

// Metadata input types. The metadata provider (Dataverse adapter, test
// fixture, anything implementing the collaborator contract) supplies these
// as synchronous, already-resolved lists before any engine call.

// LookupAttribute describes one lookup-typed column on a table, with every
// table it may point at. Polymorphic lookups carry multiple targets.
type LookupAttribute struct {
	LogicalName string   `json:"logical_name"`
	DisplayName string   `json:"display_name"`
	Required    bool     `json:"required"`
	Targets     []string `json:"targets"`
}

// OneToManyLink describes a reverse relationship: a child table whose lookup
// column references the table being configured.
type OneToManyLink struct {
	ChildTable     string `json:"child_table"`
	ChildAttribute string `json:"child_attribute"`
	DisplayName    string `json:"display_name"`
}

// TableMetadata bundles everything the provider knows about one table.
type TableMetadata struct {
	Table      Table             `json:"table"`
	Attributes []string          `json:"attributes"`
	Lookups    []LookupAttribute `json:"lookups"`
	OneToMany  []OneToManyLink   `json:"one_to_many"`
}
