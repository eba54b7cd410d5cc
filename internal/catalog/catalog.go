package catalog

import (
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CommandName selects one of the commands of a catalog entry
type CommandName string

const (
	Status CommandName = "status"
	Set    CommandName = "set"
)

// Placeholder fields the dispatcher fills in a cloned template
const (
	FieldGatewayID = "gwId"
	FieldDeviceID  = "devId"
	FieldUID       = "uid"
	FieldTime      = "t"
	FieldDPS       = "dps"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
	defaultCatalogErr  error
)

// Command is one command template: a JSON skeleton and the opcode byte
type Command struct {
	template map[string]any
	opcode   byte
	hexByte  string
}

// Opcode returns the command byte placed after the frame prefix
func (c Command) Opcode() byte { return c.opcode }

// HexByte returns the opcode as written in the catalog
func (c Command) HexByte() string { return c.hexByte }

// Has reports whether the skeleton contains the given top-level field
func (c Command) Has(field string) bool {
	_, ok := c.template[field]
	return ok
}

// Clone returns a deep copy of the JSON skeleton.
// Callers fill placeholders on the copy; the catalog's own template is never modified.
func (c Command) Clone() map[string]any {
	return cloneMap(c.template)
}

// Entry holds the frame constants and commands for one device type
type Entry struct {
	Type   string
	Prefix []byte
	Suffix []byte
	Status Command
	Set    Command
}

// Command returns the named command of the entry
func (e Entry) Command(name CommandName) (Command, bool) {
	switch name {
	case Status:
		return e.Status, e.Status.template != nil
	case Set:
		return e.Set, e.Set.template != nil
	default:
		return Command{}, false
	}
}

// Catalog maps device type names to entries. It is immutable once loaded.
type Catalog struct {
	entries map[string]Entry
}

// Lookup returns the entry for a device type
func (c *Catalog) Lookup(deviceType string) (Entry, error) {
	e, ok := c.entries[deviceType]
	if !ok {
		return Entry{}, fmt.Errorf("unknown device type %q (known: %s)", deviceType, strings.Join(c.Types(), ", "))
	}
	return e, nil
}

// Types returns the sorted device type names in the catalog
func (c *Catalog) Types() []string {
	types := make([]string, 0, len(c.entries))
	for t := range c.entries {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// rawCommand and rawEntry mirror the on-disk layout
type rawCommand struct {
	Command map[string]any `json:"command" yaml:"command"`
	HexByte string         `json:"hexByte" yaml:"hexByte"`
}

type rawEntry struct {
	Prefix string      `json:"prefix" yaml:"prefix"`
	Suffix string      `json:"suffix" yaml:"suffix"`
	Status *rawCommand `json:"status" yaml:"status"`
	Set    *rawCommand `json:"set" yaml:"set"`
}

// Default returns the built-in catalog (the "outlet" device type).
// It is parsed once and shared; it is safe to use concurrently.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseYAML(defaultYAML)
	})
	if defaultCatalogErr != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", defaultCatalogErr))
	}
	return defaultCatalog
}

// ParseYAML parses a catalog from YAML
func ParseYAML(data []byte) (*Catalog, error) {
	var raw map[string]rawEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	return build(raw)
}

// ParseJSON parses a catalog from JSON (the requests.json layout used by existing clients)
func ParseJSON(data []byte) (*Catalog, error) {
	var raw map[string]rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return build(raw)
}

// Load reads a catalog from r. format is "yaml" or "json".
func Load(r io.Reader, format string) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		return ParseYAML(data)
	case "json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}

// LoadFile reads a catalog file, choosing the format from its extension
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

func build(raw map[string]rawEntry) (*Catalog, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("catalog has no device types")
	}

	c := &Catalog{entries: make(map[string]Entry, len(raw))}
	for typ, re := range raw {
		e, err := buildEntry(typ, re)
		if err != nil {
			return nil, err
		}
		c.entries[typ] = e
	}
	return c, nil
}

func buildEntry(typ string, re rawEntry) (Entry, error) {
	prefix, err := hex.DecodeString(re.Prefix)
	if err != nil || len(prefix) == 0 {
		return Entry{}, fmt.Errorf("device type %q: invalid prefix %q", typ, re.Prefix)
	}
	suffix, err := hex.DecodeString(re.Suffix)
	if err != nil || len(suffix) == 0 {
		return Entry{}, fmt.Errorf("device type %q: invalid suffix %q", typ, re.Suffix)
	}

	e := Entry{Type: typ, Prefix: prefix, Suffix: suffix}
	if e.Status, err = buildCommand(typ, Status, re.Status); err != nil {
		return Entry{}, err
	}
	if e.Set, err = buildCommand(typ, Set, re.Set); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func buildCommand(typ string, name CommandName, rc *rawCommand) (Command, error) {
	if rc == nil {
		return Command{}, fmt.Errorf("device type %q: missing %s command", typ, name)
	}

	op, err := hex.DecodeString(rc.HexByte)
	if err != nil || len(op) != 1 {
		return Command{}, fmt.Errorf("device type %q: %s hexByte %q must be exactly one hex byte", typ, name, rc.HexByte)
	}

	tmpl := rc.Command
	if tmpl == nil {
		tmpl = map[string]any{}
	}
	return Command{template: cloneMap(tmpl), opcode: op[0], hexByte: rc.HexByte}, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
