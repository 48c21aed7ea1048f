package store

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports malformed input, one message per offending field.
// It is always detected before any storage access happens.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// NotFoundError reports an absent entity by kind and id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InsufficientStockError carries enough detail for the caller to render an
// exact message: which product, how much is on hand, how much was asked for.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("not enough stock for %s. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

// ReferentialIntegrityError reports a delete blocked by existing sale items
// that reference the product.
type ReferentialIntegrityError struct {
	ProductID  string
	References int
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("product %s has %d associated sale record(s) and cannot be deleted", e.ProductID, e.References)
}

// StorageError wraps infrastructure failures. The HTTP layer surfaces these
// generically; the wrapped cause is only logged server-side.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
