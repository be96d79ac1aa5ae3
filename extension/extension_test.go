package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})
	assert.Equal(t, 15*time.Minute, cfg.ChallengeWindow)
	assert.Equal(t, int64(100), cfg.QueryFee)

	cfg = mergeWithDefaults(Config{QueryFee: 250})
	assert.Equal(t, int64(250), cfg.QueryFee)
}

func TestMergeConfigurations(t *testing.T) {
	file := Config{ChallengeWindow: time.Hour, Admins: []string{"ops"}}
	prog := Config{DisableMigrate: true, ChallengeWindow: time.Minute, QueryFee: 7, Admins: []string{"ops", "root"}}

	cfg := mergeConfigurations(file, prog)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, time.Hour, cfg.ChallengeWindow)
	assert.Equal(t, int64(7), cfg.QueryFee)
	assert.Equal(t, []string{"ops", "root"}, cfg.Admins)
}

func TestBuildEngineOpts(t *testing.T) {
	e := &Extension{config: mergeWithDefaults(Config{
		Admins:          []string{"ops", ""},
		Resolvers:       []string{"judge"},
		ChallengeWindow: time.Hour,
		QueryFee:        250,
	})}

	eng := verity.New(memory.New(), e.buildEngineOpts()...)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	p, err := eng.Params(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, p.ChallengeWindow)
	assert.True(t, p.QueryFee.Equal(types.New(250, "usd")))
	assert.Equal(t, []types.Principal{"ops"}, p.Admins)
	assert.Equal(t, []types.Principal{"judge"}, p.Resolvers)
}

func TestNoMigrateSkipsSchema(t *testing.T) {
	s := noMigrate{memory.New()}
	assert.NoError(t, s.Migrate(context.Background()))
}
