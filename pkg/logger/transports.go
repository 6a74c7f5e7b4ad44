package logger

import (
	"fmt"
	"slices"
	"strings"
)

// TransportOp is the operation of a transport change.
type TransportOp int

const (
	// OpSet replaces the category's transports; consecutive sets accumulate.
	OpSet TransportOp = iota
	// OpAdd appends a transport.
	OpAdd
	// OpRemove drops a transport.
	OpRemove
)

// TransportChange is one parsed item of a transports expression.
type TransportChange struct {
	Category  Category
	Transport Transport
	Op        TransportOp
}

// ParseTransports parses expressions like "app=-console;+file,error=sentry".
// Categories are separated by commas and transports by semicolons. A "+"
// prefix adds a transport, "-" removes one, and no prefix replaces the list
// with the unprefixed transports of that category.
func ParseTransports(expr string) ([]TransportChange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	var changes []TransportChange
	for part := range strings.SplitSeq(expr, ",") {
		cat, list, ok := strings.Cut(strings.TrimSpace(part), "=")
		cat = strings.TrimSpace(cat)
		if !ok || cat == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTransports, part)
		}
		for item := range strings.SplitSeq(list, ";") {
			item = strings.TrimSpace(item)
			op := OpSet
			switch {
			case strings.HasPrefix(item, "+"):
				op, item = OpAdd, item[1:]
			case strings.HasPrefix(item, "-"):
				op, item = OpRemove, item[1:]
			}
			if item == "" {
				return nil, fmt.Errorf("%w: empty transport in %q", ErrInvalidTransports, part)
			}
			t := Transport(item)
			if !knownTransport(t) {
				return nil, unknownTransport(t)
			}
			changes = append(changes, TransportChange{Category: Category(cat), Transport: t, Op: op})
		}
	}
	return changes, nil
}

// ApplyTransports applies changes to cfg.Categories in order.
func ApplyTransports(cfg *Config, changes []TransportChange) {
	if cfg.Categories == nil {
		cfg.Categories = make(map[Category][]Transport)
	}
	// Categories already reset by an OpSet in this batch.
	reset := make(map[Category]bool)
	for _, c := range changes {
		cur := cfg.Categories[c.Category]
		switch c.Op {
		case OpSet:
			if !reset[c.Category] {
				cur = nil
				reset[c.Category] = true
			}
			if !slices.Contains(cur, c.Transport) {
				cur = append(cur, c.Transport)
			}
		case OpAdd:
			if !slices.Contains(cur, c.Transport) {
				cur = append(cur, c.Transport)
			}
		case OpRemove:
			cur = slices.DeleteFunc(cur, func(t Transport) bool { return t == c.Transport })
		}
		cfg.Categories[c.Category] = cur
	}
}

func unknownTransport(t Transport) error {
	return fmt.Errorf("%w: %q", ErrUnknownTransport, t)
}
