package verity_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

func TestStartRequiresCollectorForPayouts(t *testing.T) {
	ctx := context.Background()

	eng := verity.New(memory.New(), verity.WithTransferer(&bank{}))
	assert.ErrorIs(t, eng.Start(ctx), verity.ErrUnfundedPayouts)

	b := &bank{}
	eng = verity.New(memory.New(), verity.WithTransferer(b), verity.WithCollector(b))
	require.NoError(t, eng.Start(ctx))

	eng = verity.New(memory.New(), verity.WithCollector(b))
	require.NoError(t, eng.Start(ctx), "collecting without paying out is allowed")
}

func TestStartWarnsWhenStoredParamsWin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := params.Default()
	p.MinStake = types.USD(500)
	eng := verity.New(h.store,
		verity.WithParams(p),
		verity.WithAdmins(admin),
		verity.WithResolvers(resolver),
		verity.WithLogger(logger),
	)
	require.NoError(t, eng.Start(ctx))
	assert.Contains(t, buf.String(), "stored params take precedence")
	assert.Contains(t, buf.String(), "min_stake")

	stored, err := eng.Params(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.USD(100000), stored.MinStake)

	buf.Reset()
	eng = verity.New(h.store,
		verity.WithAdmins(admin),
		verity.WithResolvers(resolver),
		verity.WithLogger(logger),
	)
	require.NoError(t, eng.Start(ctx))
	assert.NotContains(t, buf.String(), "level=WARN")
}
