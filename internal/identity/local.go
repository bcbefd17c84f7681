package identity

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// LocalMinter issues identities without the uuid service. Used in dev
// setups where UUID_API_URL is unset, and by tests.
type LocalMinter struct {
	seq atomic.Int64
}

func (m *LocalMinter) Mint(ctx context.Context, token string) (MintedID, error) {
	n := m.seq.Add(1)
	return MintedID{
		UUID:       uuid.NewString(),
		RegistryID: fmt.Sprintf("AVR%03d.LOCL.%03d", n%1000, n),
	}, nil
}
