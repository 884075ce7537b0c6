package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcarbo/reldb/internal/config"
)

func newTestShell(t *testing.T) *Shell {
	dir := t.TempDir()
	cfg := config.New(dir)
	sh, err := NewShell(cfg)
	require.NoError(t, err)
	return sh
}

func runAll(t *testing.T, sh *Shell, w *bytes.Buffer, cmds ...string) {
	for _, c := range cmds {
		require.NoError(t, sh.ProcessCommand(c, w), "command: %s", c)
	}
}

func TestShellEndToEndLifecycle(t *testing.T) {
	sh := newTestShell(t)
	var w bytes.Buffer

	runAll(t, sh, &w,
		"CREATE DATABASE shop",
		"OPEN DATABASE shop",
		"CREATE TABLE users (id:INT32, age:INT32, name:STRING(8) INDEX)",
		"INSERT INTO users VALUES (1, 20, ann)",
		"INSERT INTO users VALUES (2, 30, bob)",
	)

	w.Reset()
	require.NoError(t, sh.ProcessCommand("SELECT * FROM users WHERE age >= 25", &w))
	out := w.String()
	assert.True(t, strings.Contains(out, "bob"))
	assert.False(t, strings.Contains(out, "ann"))

	w.Reset()
	require.NoError(t, sh.ProcessCommand("UPDATE users SET name=zoe WHERE id = 1", &w))
	assert.Contains(t, w.String(), "updated 1 row")

	w.Reset()
	require.NoError(t, sh.ProcessCommand("SELECT * FROM users", &w))
	assert.True(t, strings.Contains(w.String(), "zoe"))
}

func TestShellRejectsUnsupportedCommand(t *testing.T) {
	sh := newTestShell(t)
	var w bytes.Buffer
	err := sh.ProcessCommand("DROP INDEX whatever", &w)
	assert.Error(t, err)
}
