package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random id such as "conv_3f2a9c1b7d4e5f60".
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
