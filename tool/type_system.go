package tool

import "strings"

// Parameter type literals accepted in tool schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

var paramTypeAliases = map[string]string{
	"string":  TypeString,
	"str":     TypeString,
	"text":    TypeString,
	"integer": TypeInteger,
	"int":     TypeInteger,
	"number":  TypeNumber,
	"float":   TypeNumber,
	"double":  TypeNumber,
	"boolean": TypeBoolean,
	"bool":    TypeBoolean,
	"array":   TypeArray,
	"list":    TypeArray,
	"object":  TypeObject,
	"dict":    TypeObject,
	"map":     TypeObject,
}

// NormalizeParamType maps common spellings onto the schema type literals.
// Unrecognized types are returned trimmed and lower-cased.
func NormalizeParamType(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	if canonical, ok := paramTypeAliases[clean]; ok {
		return canonical
	}
	return clean
}

// IsKnownParamType reports whether typeName is one of the schema type literals.
func IsKnownParamType(typeName string) bool {
	switch typeName {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}
