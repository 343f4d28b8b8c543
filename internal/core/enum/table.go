// Package enum provides closed, integer-coded enumerations.
//
// Each enum is a named integer type with exactly one Table that maps every
// member to its stable integer code and its wire name. Values coming from the
// outside (JSON, database, request codes) are admitted only through the table,
// so an unknown code never reaches domain logic.
package enum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"stockledger/internal/core/apperror"
)

// Member is one row of a Table.
type Member[T ~uint8] struct {
	Value T
	Name  string
}

// Table is the exhaustive code/name mapping of one enum type.
type Table[T ~uint8] struct {
	kind    string
	members []Member[T]
	byValue map[T]string
	byName  map[string]T
}

// NewTable builds a table. It panics on duplicate codes or names, which can
// only happen through a programming error in a package-level declaration.
func NewTable[T ~uint8](kind string, members ...Member[T]) *Table[T] {
	t := &Table[T]{
		kind:    kind,
		members: members,
		byValue: make(map[T]string, len(members)),
		byName:  make(map[string]T, len(members)),
	}
	for _, m := range members {
		if m.Value == 0 {
			panic(fmt.Sprintf("enum %s: code 0 is reserved for the zero value", kind))
		}
		if _, dup := t.byValue[m.Value]; dup {
			panic(fmt.Sprintf("enum %s: duplicate code %d", kind, m.Value))
		}
		if _, dup := t.byName[m.Name]; dup {
			panic(fmt.Sprintf("enum %s: duplicate name %s", kind, m.Name))
		}
		t.byValue[m.Value] = m.Name
		t.byName[m.Name] = m.Value
	}
	return t
}

// Kind returns the human-readable enum name used in error messages.
func (t *Table[T]) Kind() string { return t.kind }

// Valid reports whether v is a member.
func (t *Table[T]) Valid(v T) bool {
	_, ok := t.byValue[v]
	return ok
}

// Name returns the wire name of v.
func (t *Table[T]) Name(v T) string {
	if name, ok := t.byValue[v]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(v))
}

// Values returns all members in declaration order.
func (t *Table[T]) Values() []T {
	out := make([]T, 0, len(t.members))
	for _, m := range t.members {
		out = append(out, m.Value)
	}
	return out
}

// FromCode converts an integer code.
func (t *Table[T]) FromCode(code int) (T, error) {
	if code > 0 && code <= 255 {
		if v := T(code); t.Valid(v) {
			return v, nil
		}
	}
	return 0, apperror.NewInvalidArgument(fmt.Sprintf("unknown %s code", t.kind)).
		WithDetail("code", code)
}

// FromName converts a wire name (case-insensitive).
func (t *Table[T]) FromName(name string) (T, error) {
	if v, ok := t.byName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return v, nil
	}
	return 0, apperror.NewInvalidArgument(fmt.Sprintf("unknown %s", t.kind)).
		WithDetail("value", name)
}

// Marshal encodes v as its JSON name.
func (t *Table[T]) Marshal(v T) ([]byte, error) {
	if !t.Valid(v) {
		return nil, fmt.Errorf("marshal %s: invalid code %d", t.kind, uint8(v))
	}
	return json.Marshal(t.byValue[v])
}

// Unmarshal accepts either the wire name or the integer code.
func (t *Table[T]) Unmarshal(data []byte, dst *T) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := t.FromName(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	code, err := strconv.Atoi(string(data))
	if err != nil {
		return apperror.NewInvalidArgument(fmt.Sprintf("invalid %s", t.kind)).
			WithDetail("value", string(data))
	}
	v, err := t.FromCode(code)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
