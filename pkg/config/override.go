package config

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Snapshot holds config values captured by dotted path.
type Snapshot struct {
	values map[string]any
	fields []string
}

// OverrideError names the fields that were expected to change but did not.
type OverrideError struct {
	Fields []string
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("config: fields not overridden during configure: %s", strings.Join(e.Fields, ", "))
}

func (e *OverrideError) Unwrap() error {
	return ErrNotOverridden
}

// Get returns the value at a dotted path such as "core.workers" or
// "mongodb.host", as seen in the YAML form of c.
func (c *Config) Get(path string) (any, bool, error) {
	tree, err := c.tree()
	if err != nil {
		return nil, false, err
	}
	v, ok := lookup(tree, path)
	return v, ok, nil
}

// Snapshot captures the values of fields.
func (c *Config) Snapshot(fields []string) (*Snapshot, error) {
	tree, err := c.tree()
	if err != nil {
		return nil, err
	}
	s := &Snapshot{fields: fields, values: make(map[string]any, len(fields))}
	for _, f := range fields {
		v, _ := lookup(tree, f)
		s.values[f] = v
	}
	return s, nil
}

// Verify returns an *OverrideError listing every snapshotted field whose
// value in c is unchanged.
func (s *Snapshot) Verify(c *Config) error {
	tree, err := c.tree()
	if err != nil {
		return err
	}
	var same []string
	for _, f := range s.fields {
		v, _ := lookup(tree, f)
		if reflect.DeepEqual(v, s.values[f]) {
			same = append(same, f)
		}
	}
	if len(same) > 0 {
		return &OverrideError{Fields: same}
	}
	return nil
}

// tree is the generic YAML form of c.
func (c *Config) tree() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func lookup(tree map[string]any, path string) (any, bool) {
	var cur any = tree
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
