package opc

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// GroupPrefix starts every generated group name.
const GroupPrefix = "GROUP_"

// NewGroupName returns GROUP_ followed by 16 upper-case hex characters
// taken from a random UUID.
func NewGroupName() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return GroupPrefix + strings.ToUpper(hex[:16])
}

// GroupOwner creates and removes groups. Server satisfies it.
type GroupOwner interface {
	AddGroup(ctx context.Context, spec GroupSpec) (Group, error)
	RemoveGroup(ctx context.Context, handle uint32) error
}
