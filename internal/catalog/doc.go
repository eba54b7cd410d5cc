// Package catalog holds the per-device-type command templates.
//
// A catalog maps a device type name to the fixed frame prefix and suffix and to
// two commands, status and set. Each command has an opcode byte and a JSON
// skeleton with placeholder fields (gwId, devId, uid, t, dps).
//
// # File Format
//
// Catalogs load from YAML or from the JSON layout used by existing installations:
//
//	outlet:
//	  prefix: "000055aa00000000000000"
//	  suffix: "000000000000aa55"
//	  status:
//	    hexByte: "0a"
//	    command: {gwId: "", devId: ""}
//	  set:
//	    hexByte: "07"
//	    command: {devId: "", uid: "", t: ""}
//
// Default returns an embedded catalog with the "outlet" type.
//
// # Immutability
//
// Templates are never handed out directly. Command.Clone returns a deep copy that
// the caller owns, so concurrent requests cannot see each other's placeholders.
package catalog
