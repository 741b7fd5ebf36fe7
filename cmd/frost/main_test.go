// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/freeze/codec"
)

const doc = `{"service":"api","ports":[80,443],"limits":{"cpu":2,"burst":true}}`

type result struct {
	code   int
	stdout string
	stderr string
}

func frost(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFreezeCmd_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "svc.json", doc)

	res := frost(t, "", "freeze", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.JSONEq(t, doc, res.stdout)
}

func TestFreezeCmd_StdinYAML(t *testing.T) {
	res := frost(t, "name: api\ntags: [a, b]\n", "freeze", "--format", "yaml")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "name: api")
	assert.Contains(t, res.stdout, "- a")
}

func TestFreezeCmd_CBOR(t *testing.T) {
	res := frost(t, doc, "freeze", "-f", "cbor", "-")
	require.Equal(t, 0, res.code, res.stderr)

	decoded, err := codec.Unmarshal([]byte(res.stdout))
	require.NoError(t, err)
	assert.True(t, freeze.IsFrozen(decoded))

	out, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(out))
}

func TestFreezeCmd_MultipleFilesKeepOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `{"n":1}`)
	b := writeFile(t, dir, "b.yaml", "n: 2\n")

	res := frost(t, "", "freeze", a, b)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", res.stdout)
}

func TestFreezeCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "a: [\n")
	good := writeFile(t, dir, "good.json", doc)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"freeze", filepath.Join(dir, "none.json")}, "none.json"},
		{"parse error", []string{"freeze", bad}, "parse"},
		{"unknown format", []string{"freeze", "--format", "xml", bad}, "unknown format"},
		{"stdin twice", []string{"freeze", "-", "-"}, "stdin"},
		{"no store", []string{"freeze", "--key", "k", good}, "no snapshot store"},
		{"bad config", []string{"--log-level", "chatty", "freeze", bad}, "invalid configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := frost(t, "", tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestSnapshotCommands(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	path := writeFile(t, dir, "svc.json", doc)

	res := frost(t, "", "freeze", "--store", store, "--key", "prod", path)
	require.Equal(t, 0, res.code, res.stderr)

	res = frost(t, "", "keys", "--store", store)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "prod\n", res.stdout)

	res = frost(t, "", "thaw", "--store", store, "prod")
	require.Equal(t, 0, res.code, res.stderr)
	assert.JSONEq(t, doc, res.stdout)

	res = frost(t, "", "thaw", "--store", store, "-f", "yaml", "prod")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "service: api")

	res = frost(t, "", "rm", "--store", store, "prod")
	require.Equal(t, 0, res.code, res.stderr)

	res = frost(t, "", "thaw", "--store", store, "prod")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not found")
}

func TestSnapshotCommands_StoreFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "frost.yaml", "store:\n  dir: "+filepath.Join(dir, "store")+"\n")
	a := writeFile(t, dir, "a.json", `{"n":1}`)
	b := writeFile(t, dir, "b.json", `{"n":2}`)

	res := frost(t, "", "--config", cfg, "freeze", "--key", "batch", a, b)
	require.Equal(t, 0, res.code, res.stderr)

	res = frost(t, "", "--config", cfg, "keys")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "batch/a\nbatch/b\n", res.stdout)
}

func TestInspectCmd(t *testing.T) {
	res := frost(t, `{"a":1,"b":[1,"x"]}`, "inspect")
	require.Equal(t, 0, res.code, res.stderr)

	want := strings.Join([]string{
		"frozenmap (2)",
		`├─ "a": int 1`,
		`└─ "b": frozensequence (2)`,
		`   ├─ [0]: int 1`,
		`   └─ [1]: string "x"`,
		"",
	}, "\n")
	assert.Equal(t, want, res.stdout)
}

func TestInspectCmd_Cycle(t *testing.T) {
	type node struct{ Next any }
	n := &node{}
	n.Next = []any{n}
	frozen, err := freeze.Freeze(n)
	require.NoError(t, err)

	var buf bytes.Buffer
	tr := &tree{w: &buf, open: map[any]bool{}}
	tr.node("", "", "", frozen)
	require.NoError(t, tr.err)
	assert.Contains(t, buf.String(), "<cycle>")
}

func TestMetricsOut(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "metrics.txt")

	res := frost(t, doc, "--metrics-out", out, "freeze")
	require.Equal(t, 0, res.code, res.stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# TYPE")
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "svc", snapshotKey("", "/etc/svc.json", 1))
	assert.Equal(t, "prod", snapshotKey("prod", "/etc/svc.json", 1))
	assert.Equal(t, "prod/svc", snapshotKey("prod", "/etc/svc.json", 2))
	assert.Equal(t, "stdin", snapshotKey("", "-", 1))
	assert.Equal(t, "my-settings", snapshotKey("", "/tmp/my settings.yaml", 1))
	assert.Equal(t, "_.env", snapshotKey("", "/app/.env", 1))
}

func TestPlain(t *testing.T) {
	got := plain(map[any]any{
		1:     "one",
		"set": map[any]struct{}{"b": {}, "a": {}},
		"nil": []any(nil),
	})
	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":"one","set":["a","b"],"nil":null}`, string(out))
}

// syncBuffer is a bytes.Buffer safe for a command writing in the background.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func background(t *testing.T, args ...string) (stdout *syncBuffer, stop func() int) {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	ctx, cancel := context.WithCancel(context.Background())
	stdout = &syncBuffer{}
	stderr := &syncBuffer{}
	done := make(chan int, 1)
	go func() { done <- run(ctx, args, strings.NewReader(""), stdout, stderr) }()

	return stdout, func() int {
		cancel()
		select {
		case code := <-done:
			if code != 0 {
				t.Logf("stderr: %s", stderr.String())
			}
			return code
		case <-time.After(10 * time.Second):
			t.Fatal("command did not stop")
			return -1
		}
	}
}

func TestWatchCmd(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "svc.json", `{"v":1}`)

	stdout, stop := background(t, "watch", "--store", filepath.Join(dir, "store"), path)
	require.Eventually(t, func() bool {
		return strings.Count(stdout.String(), "stored svc") == 1
	}, 5*time.Second, 20*time.Millisecond, "initial sync")

	require.NoError(t, os.WriteFile(path, []byte(`{"v":2}`), 0o600))
	require.Eventually(t, func() bool {
		return strings.Count(stdout.String(), "stored svc") >= 2
	}, 5*time.Second, 20*time.Millisecond, "sync after write")
	require.Equal(t, 0, stop())

	res := frost(t, "", "thaw", "--store", filepath.Join(dir, "store"), "svc")
	require.Equal(t, 0, res.code, res.stderr)
	assert.JSONEq(t, `{"v":2}`, res.stdout)
}

func TestServeCmd(t *testing.T) {
	dir := t.TempDir()
	stdout, stop := background(t, "serve", "--store", filepath.Join(dir, "store"), "--addr", "127.0.0.1:0")

	var addr string
	require.Eventually(t, func() bool {
		_, after, ok := strings.Cut(stdout.String(), "listening on ")
		addr = strings.TrimSpace(after)
		return ok && addr != ""
	}, 5*time.Second, 20*time.Millisecond)

	req, err := http.NewRequest(http.MethodPut, "http://"+addr+"/v1/snapshots/svc", strings.NewReader(doc))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/v1/snapshots/svc")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(body))

	require.Equal(t, 0, stop())
}
