package directory

import (
	"context"
	"fmt"

	"github.com/crewware/teamcore/pkg/perm"
)

// Display holds the presentation fields for a principal
type Display struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Lookup resolves display information for principals
type Lookup interface {
	Display(ctx context.Context, p perm.Principal) (Display, error)
}

func cacheKey(p perm.Principal) string {
	return fmt.Sprintf("display:%s:%d", p.Kind(), p.ID())
}
