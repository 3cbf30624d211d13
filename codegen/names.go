package codegen

import "strings"

// reservedWords covers Go keywords plus identifiers the runtime library
// itself exports, so generated types never shadow something a caller
// needs to reference unqualified (capnp.Struct, capnp.Message, ...).
var reservedWords = map[string]bool{
	"break": true, "default": true, "func": true, "interface": true, "select": true,
	"case": true, "defer": true, "go": true, "map": true, "struct": true,
	"chan": true, "else": true, "goto": true, "package": true, "switch": true,
	"const": true, "fallthrough": true, "if": true, "range": true, "type": true,
	"continue": true, "for": true, "import": true, "return": true, "var": true,

	"String": true, "Message": true, "Segment": true, "Struct": true, "List": true,
	"Ptr": true, "Client": true, "Error": true, "Kind": true,
}

// exportedName converts a schema identifier (snake_case or camelCase, as
// Cap'n Proto schemas allow both) into an exported Go identifier,
// escaping it with a trailing underscore if it collides with a reserved
// word.
func exportedName(s string) string {
	n := camelCase(s, true)
	if reservedWords[n] {
		n += "_"
	}
	return n
}

// unexportedName converts a schema identifier into an unexported Go
// identifier, escaping it with a trailing underscore if it collides with
// a reserved word.
func unexportedName(s string) string {
	n := camelCase(s, false)
	if reservedWords[n] {
		n += "_"
	}
	return n
}

func camelCase(s string, exported bool) string {
	var b strings.Builder
	upperNext := exported
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '-':
			upperNext = true
		case upperNext:
			b.WriteByte(toUpper(c))
			upperNext = false
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// fieldAccessorName is the name used for a generated field's getter: the
// exported form of the field name, with no prefix added.
func fieldAccessorName(field string) string {
	return exportedName(field)
}

// goTypeFileName derives the generated file name for a schema file's
// display name, matching the reference plugin's "<name>.capnp.go"
// convention.
func goTypeFileName(displayName string) string {
	if i := strings.LastIndexByte(displayName, '/'); i >= 0 {
		displayName = displayName[i+1:]
	}
	if strings.HasSuffix(displayName, ".capnp") {
		return displayName + ".go"
	}
	return displayName + ".capnp.go"
}
