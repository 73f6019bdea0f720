package models

import (
	"strings"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Table identifies a Dataverse table. Immutable once loaded; owned by the
// metadata provider and referenced by logical name everywhere else.
type Table struct {
	LogicalName          string `json:"logical_name"`
	DisplayName          string `json:"display_name"`
	PrimaryIDAttribute   string `json:"primary_id_attribute"`
	PrimaryNameAttribute string `json:"primary_name_attribute"`
}

// NormalizeTableName returns the canonical case-insensitive key for a
// table logical name.
func NormalizeTableName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var titleCaser = cases.Title(language.English)

// SynthesizeTable builds a minimal stand-in Table for a logical name that is
// not part of the currently loaded metadata set. Star-schema configuration may
// reference tables outside the loaded solution; downstream metadata loading is
// expected to backfill the real definition later.
func SynthesizeTable(logicalName string) Table {
	normalized := NormalizeTableName(logicalName)

	// Publisher-prefixed names ("contoso_territory") read better without the
	// prefix; everything after the first underscore is the entity name.
	display := normalized
	if idx := strings.Index(display, "_"); idx > 0 && idx < len(display)-1 {
		display = display[idx+1:]
	}
	display = titleCaser.String(strings.ReplaceAll(inflection.Singular(display), "_", " "))

	return Table{
		LogicalName:          normalized,
		DisplayName:          display,
		PrimaryIDAttribute:   normalized + "id",
		PrimaryNameAttribute: "name",
	}
}
