package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/family"
	"github.com/familyorganizer/eventsourcing/internal/config"
)

func diskConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverDisk, DSN: dir}
	cfg.Log.Level = "error"
	return cfg
}

func openApp(t *testing.T, cfg config.Config) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a, err := newApp(t.Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	require.NoError(t, err)
	return a, &out
}

func TestExec_FamilyLifecycle(t *testing.T) {
	dir := t.TempDir()
	a, out := openApp(t, diskConfig(dir))

	require.NoError(t, a.exec(t.Context(), "create", []string{"Smiths", "U1", "F1"}))
	var res es.AppendResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, uint64(3), res.NextExpectedVersion)

	require.NoError(t, a.exec(t.Context(), "add-member", []string{"F1", "U2", "Child"}))
	require.NoError(t, a.exec(t.Context(), "rename", []string{"F1", "The Smiths"}))
	a.close()

	// a second process rebuilds the directory from the files on disk
	b, out := openApp(t, diskConfig(dir))
	defer b.close()

	require.NoError(t, b.exec(t.Context(), "find-member", []string{"U2"}))
	var found []familyView
	require.NoError(t, json.Unmarshal(out.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "The Smiths", found[0].Name)
	assert.Equal(t, uint64(5), found[0].Version)
	assert.Equal(t, []string{"U1"}, found[0].Admins)

	out.Reset()
	require.NoError(t, b.exec(t.Context(), "replay", []string{"F1", "3"}))
	var v familyView
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, "Smiths", v.Name)
	assert.Equal(t, []family.Member{{UserID: "U1", Role: family.RoleFamilyAdmin}}, v.Members)
}

func TestExec_Errors(t *testing.T) {
	a, _ := openApp(t, config.Default())
	defer a.close()

	err := a.exec(t.Context(), "show", []string{"missing"})
	require.ErrorIs(t, err, es.ErrAggregateNotFound)

	err = a.exec(t.Context(), "create", []string{"", "U1"})
	require.ErrorIs(t, err, es.ErrBusinessRuleViolation)

	err = a.exec(t.Context(), "rename", []string{"F1"})
	require.ErrorContains(t, err, "expected 2 arguments")

	err = a.exec(t.Context(), "replay", []string{"missing"})
	require.ErrorIs(t, err, es.ErrAggregateNotFound)

	err = a.exec(t.Context(), "replay", []string{"F1", "x"})
	require.ErrorContains(t, err, "replay: version")

	err = a.exec(t.Context(), "archive", nil)
	require.ErrorContains(t, err, `unknown command "archive"`)
}
