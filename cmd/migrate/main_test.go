package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

type fakeMigrator struct {
	upErr    error
	stepsErr error
	steps    []int
	forced   []int
	version  uint
	dirty    bool
	verErr   error
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = append(f.forced, v)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.verErr }

func testLogger() (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewWithWriter("debug", &buf), &buf
}

func TestRunDefaultsToUp(t *testing.T) {
	logger, out := testLogger()
	m := &fakeMigrator{version: 1}

	require.NoError(t, run(nil, m, logger))
	assert.Contains(t, out.String(), "migrations applied")
	assert.Contains(t, out.String(), `"version":1`)
}

func TestRunUpNoChangeIsNotAnError(t *testing.T) {
	logger, out := testLogger()
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 1}

	require.NoError(t, run([]string{"up"}, m, logger))
	assert.Contains(t, out.String(), "schema already up to date")
}

func TestRunUpFailure(t *testing.T) {
	logger, _ := testLogger()
	cause := errors.New("syntax error at or near")

	err := run([]string{"up"}, &fakeMigrator{upErr: cause}, logger)
	assert.ErrorIs(t, err, cause)
}

func TestRunDownStepsBackwards(t *testing.T) {
	logger, _ := testLogger()
	m := &fakeMigrator{verErr: migrate.ErrNilVersion}

	require.NoError(t, run([]string{"down", "1"}, m, logger))
	assert.Equal(t, []int{-1}, m.steps)
}

func TestRunRejectsBadArguments(t *testing.T) {
	logger, _ := testLogger()
	cases := [][]string{
		{"down"},
		{"down", "zero"},
		{"down", "0"},
		{"force"},
		{"force", "v1"},
		{"sideways"},
	}
	for _, args := range cases {
		m := &fakeMigrator{}
		assert.Error(t, run(args, m, logger), "args %v", args)
		assert.Empty(t, m.steps)
		assert.Empty(t, m.forced)
	}
}

func TestRunForce(t *testing.T) {
	logger, out := testLogger()
	m := &fakeMigrator{}

	require.NoError(t, run([]string{"force", "1"}, m, logger))
	assert.Equal(t, []int{1}, m.forced)
	assert.Contains(t, out.String(), "schema version forced")
}

func TestRunVersionReportsDirtySchema(t *testing.T) {
	logger, out := testLogger()

	require.NoError(t, run([]string{"version"}, &fakeMigrator{version: 1, dirty: true}, logger))
	assert.Contains(t, out.String(), "schema is dirty")

	err := run([]string{"version"}, &fakeMigrator{verErr: errors.New("relation missing")}, logger)
	assert.ErrorContains(t, err, "relation missing")
}
