package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/identity"
)

func ptr(s string) *string { return &s }

func testScheduler(host config.Host, tokens TokenGenerator) *Scheduler {
	return New([]config.Host{host}, SpoolSource{}, engine.NewQueue(), tokens, zerolog.Nop())
}

func TestNormalize(t *testing.T) {
	host := config.Host{ID: "glpi:v11"}
	s := testScheduler(host, NewFixedGenerator())

	occurred := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev, err := s.Normalize(host, Observation{
		IdempotencyKey: "evt-1",
		VendorKey:      "123",
		Kind:           "incident.created",
		Title:          ptr("Disk full"),
		Status:         ptr("NEW"),
		OccurredAt:     occurred,
	})
	require.NoError(t, err)

	assert.Equal(t, "evt-1", ev.IdempotencyKey)
	assert.Equal(t, identity.SystemID("glpi:v11"), ev.Source)
	assert.Equal(t, identity.IncidentKey{System: "glpi:v11", VendorKey: "123"}, ev.IncidentKey)
	assert.Equal(t, "incident.created", ev.Kind)
	assert.Equal(t, "Disk full", *ev.Title)
	require.NotNil(t, ev.Status)
	assert.Equal(t, identity.StatusNew, *ev.Status)
	assert.Equal(t, occurred, ev.OccurredAt)
}

func TestNormalizeAppliesStatusMap(t *testing.T) {
	host := config.Host{
		ID:        "glpi:v11",
		StatusMap: map[string]string{"In Progress": "ASSIGNED"},
	}
	s := testScheduler(host, NewFixedGenerator("tok-1"))

	ev, err := s.Normalize(host, Observation{
		VendorKey: "123",
		Status:    ptr("In Progress"),
	})
	require.NoError(t, err)
	require.NotNil(t, ev.Status)
	assert.Equal(t, identity.StatusAssigned, *ev.Status)
}

func TestNormalizeRejectsUnknownStatus(t *testing.T) {
	host := config.Host{ID: "glpi:v11"}
	s := testScheduler(host, NewFixedGenerator("tok-1"))

	_, err := s.Normalize(host, Observation{
		VendorKey: "123",
		Status:    ptr("ON FIRE"),
	})
	require.Error(t, err)

	var invalid *identity.InvalidStatusError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "ON FIRE", invalid.Value)
}

func TestNormalizeSynthesizesToken(t *testing.T) {
	host := config.Host{ID: "glpi:v11"}
	s := testScheduler(host, NewFixedGenerator("tok-1", "tok-2"))

	ev, err := s.Normalize(host, Observation{VendorKey: "123"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", ev.IdempotencyKey)

	ev, err = s.Normalize(host, Observation{VendorKey: "124"})
	require.NoError(t, err)
	assert.Equal(t, "tok-2", ev.IdempotencyKey)
}

func TestNormalizeDefaults(t *testing.T) {
	host := config.Host{ID: "glpi:v11"}
	s := testScheduler(host, NewFixedGenerator("tok-1"))

	before := time.Now()
	ev, err := s.Normalize(host, Observation{VendorKey: "123"})
	require.NoError(t, err)

	assert.Equal(t, "incident.observed", ev.Kind)
	assert.False(t, ev.OccurredAt.Before(before), "missing occurred_at gets the current time")
	assert.Nil(t, ev.Status)
	assert.Nil(t, ev.Title)
}

func TestUUIDv7GeneratorUnique(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func writeSpoolFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestSpoolSourceFetch(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "0002.json", `{"vendor_key":"124","status":"ASSIGNED"}`)
	writeSpoolFile(t, dir, "0001.json", `{"vendor_key":"123","title":"Disk full","status":"NEW"}`)
	writeSpoolFile(t, dir, "notes.txt", "ignored")

	host := config.Host{ID: "glpi:v11", Spool: dir}
	got, err := SpoolSource{}.Fetch(context.Background(), host, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Name order, not write order.
	assert.Equal(t, "123", got[0].VendorKey)
	assert.Equal(t, "Disk full", *got[0].Title)
	assert.Equal(t, "124", got[1].VendorKey)

	// Consumed on read.
	got, err = SpoolSource{}.Fetch(context.Background(), host, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSpoolSourceLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "c.json"} {
		writeSpoolFile(t, dir, name, `{"vendor_key":"1"}`)
	}

	host := config.Host{ID: "glpi:v11", Spool: dir}
	got, err := SpoolSource{}.Fetch(context.Background(), host, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// The file past the limit stays for the next poll.
	got, err = SpoolSource{}.Fetch(context.Background(), host, 2)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSpoolSourceNoSpool(t *testing.T) {
	got, err := SpoolSource{}.Fetch(context.Background(), config.Host{ID: "glpi:v11"}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSpoolSourceBadJSON(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "0001.json", `{not json`)

	host := config.Host{ID: "glpi:v11", Spool: dir}
	_, err := SpoolSource{}.Fetch(context.Background(), host, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode spool file")
}
