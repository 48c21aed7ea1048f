package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed unique identifier, e.g. "sale_1b4e28ba-...".
func New(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
