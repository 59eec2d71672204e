package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/config"
	"github.com/mvelimir/skeep/internal/session"
	"github.com/mvelimir/skeep/internal/store"
)

func newTestGlobals(t *testing.T, format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.StoreDir = t.TempDir()
	var stdout, stderr bytes.Buffer
	g := &Globals{
		Format:   format,
		StoreDir: cfg.StoreDir,
		Config:   cfg,
		Logger:   zap.NewNop(),
		Stdout:   &stdout,
		Stderr:   &stderr,
	}
	return g, &stdout, &stderr
}

func seedRecord(t *testing.T, g *Globals, rec *session.Record) {
	t.Helper()
	st, err := store.Open(g.StoreDir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Put(rec))
}

func TestNewGlobalsResolvesDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.StoreDir = t.TempDir()
	c := &CLI{Format: "json"}
	g := NewGlobals(c, cfg)
	require.Equal(t, "json", g.Format)
	require.Equal(t, cfg.StoreDir, g.StoreDir, "store dir falls back to config")
	require.NotNil(t, g.Logger)

	// Explicit flag wins over the configured directory.
	c = &CLI{Format: "table", StoreDir: "/tmp/elsewhere"}
	g = NewGlobals(c, cfg)
	require.Equal(t, "/tmp/elsewhere", g.StoreDir)
}

func TestListEmptyStore(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "table")
	cmd := &ListCmd{}
	require.NoError(t, cmd.Run(g))
	require.Contains(t, stdout.String(), "No sessions stored.")

	g, stdout, _ = newTestGlobals(t, "json")
	require.NoError(t, cmd.Run(g))
	require.Empty(t, stdout.String(), "json mode emits nothing for an empty store")
}

func TestListJSONLines(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "json")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedRecord(t, g, session.NewRecord("aaa", nil, now))
	closed := session.NewRecord("bbb", nil, now.Add(time.Minute))
	closed.State = session.StateClosed
	seedRecord(t, g, closed)

	require.NoError(t, (&ListCmd{}).Run(g))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)

	var first struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		State     string `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "session", first.Type)
	require.Equal(t, "aaa", first.SessionID)
	require.Equal(t, "ACTIVE", first.State)
	require.Contains(t, lines[1], `"bbb"`)
	require.Contains(t, lines[1], `"CLOSED"`)
}

func TestListTable(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "table")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedRecord(t, g, session.NewRecord("sess-1", nil, now))

	require.NoError(t, (&ListCmd{}).Run(g))

	out := stdout.String()
	require.Contains(t, out, "SESSION ID")
	require.Contains(t, out, "sess-1")
	require.Contains(t, out, "ACTIVE")
	require.Contains(t, out, "2026-08-25T12:00:00Z")
}

func TestShowText(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "table")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rec := session.NewRecord("sess-show", []byte(`{"draft":"hello"}`), now)
	rec.State = session.StateDisconnected
	deadline := now.Add(24 * time.Hour)
	rec.GraceDeadline = &deadline
	seedRecord(t, g, rec)

	require.NoError(t, (&ShowCmd{SessionID: "sess-show"}).Run(g))

	out := stdout.String()
	require.Contains(t, out, "Session:        sess-show")
	require.Contains(t, out, "State:          DISCONNECTED")
	require.Contains(t, out, "Reattachable:   until 2026-08-26T12:00:00Z")
	require.Contains(t, out, `Payload:        {"draft":"hello"}`)
}

func TestShowTerminalReason(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "table")
	rec := session.NewRecord("sess-closed", nil, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	rec.State = session.StateClosed
	seedRecord(t, g, rec)

	require.NoError(t, (&ShowCmd{SessionID: "sess-closed"}).Run(g))
	require.Contains(t, stdout.String(), "Reattachable:   no (closed)")
}

func TestShowJSONRoundTrip(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "json")
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"draft":"hello","n":1}`)
	seedRecord(t, g, session.NewRecord("sess-json", payload, now))

	require.NoError(t, (&ShowCmd{SessionID: "sess-json"}).Run(g))

	var rec session.Record
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rec))
	require.Equal(t, "sess-json", rec.SessionID)
	require.Equal(t, session.StateActive, rec.State)
	require.Equal(t, payload, rec.Payload, "payload survives byte for byte")
}

func TestShowNotFound(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "json")
	err := (&ShowCmd{SessionID: "missing"}).Run(g)
	require.Error(t, err)

	var msg struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &msg))
	require.Equal(t, "error", msg.Type)
	require.Equal(t, "NOT_FOUND", msg.Code)
}

func TestShowNotFoundText(t *testing.T) {
	g, _, stderr := newTestGlobals(t, "table")
	err := (&ShowCmd{SessionID: "missing"}).Run(g)
	require.Error(t, err)
	require.Contains(t, stderr.String(), "Error [NOT_FOUND]:")
}

func TestCleanupDeletesStaleTerminalRecords(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "json")
	now := time.Now().UTC()

	stale := session.NewRecord("stale", nil, now.Add(-48*time.Hour))
	stale.State = session.StateExpired
	seedRecord(t, g, stale)
	live := session.NewRecord("live", nil, now.Add(-48*time.Hour))
	seedRecord(t, g, live)

	require.NoError(t, (&CleanupCmd{MaxAgeHours: 24}).Run(g))

	var res struct {
		Type        string `json:"type"`
		Deleted     int    `json:"deleted"`
		MaxAgeHours int    `json:"max_age_hours"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	require.Equal(t, "cleanup", res.Type)
	require.Equal(t, 1, res.Deleted)
	require.Equal(t, 24, res.MaxAgeHours)
}

func TestCleanupRejectsNegativeMaxAge(t *testing.T) {
	g, _, stderr := newTestGlobals(t, "table")
	err := (&CleanupCmd{MaxAgeHours: -1}).Run(g)
	require.Error(t, err)
	require.Contains(t, stderr.String(), "INVALID_MAX_AGE")
}

func TestCleanupTextSummary(t *testing.T) {
	g, stdout, _ := newTestGlobals(t, "table")
	require.NoError(t, (&CleanupCmd{MaxAgeHours: 24}).Run(g))
	require.Contains(t, stdout.String(), "Deleted 0 stale session(s) older than 24h.")
}
