package testutil

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lakerun/internal/process"
)

func TestFakeRunner_ScriptedReplies(t *testing.T) {
	r := NewFakeRunner().
		On("validate", EngineReply{Output: "checked\n"}).
		On("load", EngineReply{Output: "boom\n", ExitCode: 2})
	r.Default = EngineReply{Output: "default\n"}

	var sink bytes.Buffer
	res, err := r.Run(context.Background(), process.Spec{Args: []string{"validate"}}, &sink)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "checked\n", res.Output)

	res, err = r.Run(context.Background(), process.Spec{Args: []string{"load"}}, &sink)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)

	res, err = r.Run(context.Background(), process.Spec{Args: []string{"yml2gv"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "default\n", res.Output)

	assert.Equal(t, "checked\nboom\n", sink.String())
	assert.Equal(t, []string{"validate", "load", "yml2gv"}, r.Args())
}

func TestFakeRunner_SpawnError(t *testing.T) {
	spawnErr := errors.New("no such file")
	r := NewFakeRunner().On("validate", EngineReply{Err: spawnErr})

	res, err := r.Run(context.Background(), process.Spec{Args: []string{"validate"}}, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, spawnErr)
	assert.Len(t, r.Calls(), 1)
}

func TestMemoryState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryState("project_id", "p1")

	v, ok, err := s.GetState(ctx, "project_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p1", v)

	require.NoError(t, s.DeleteState(ctx, "project_id"))
	_, ok, _ = s.GetState(ctx, "project_id")
	assert.False(t, ok)

	require.NoError(t, s.SetState(ctx, "env", "dev"))
	assert.Equal(t, "dev", s.Value("env"))
}
