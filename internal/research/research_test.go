package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/logging"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/safety"
)

type scriptedOracle struct {
	response string
	err      error
	calls    int
}

func (s *scriptedOracle) Complete(ctx context.Context, msgs []provider.Message, opts provider.Options) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *scriptedOracle) Embed(ctx context.Context, text, model string) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func newTestResearcher(t *testing.T, oracle provider.Oracle, index *memory.Index) *Researcher {
	t.Helper()
	c := cache.New(true, 100, time.Hour, logging.Discard())
	filter := safety.New(true, true, nil, logging.Discard())
	return New(oracle, provider.Options{}, c, index, filter, false, logging.Discard())
}

func TestPlainQuestionGoesToOracle(t *testing.T) {
	oracle := &scriptedOracle{response: "Go has goroutines."}
	r := newTestResearcher(t, oracle, nil)

	out, err := r.Search(context.Background(), "how does Go handle concurrency")
	require.NoError(t, err)
	assert.Equal(t, "Go has goroutines.", out)
	assert.Equal(t, 1, oracle.calls)
}

func TestSearchUsesMemoryCache(t *testing.T) {
	oracle := &scriptedOracle{response: "answer"}
	r := newTestResearcher(t, oracle, nil)

	_, err := r.Search(context.Background(), "same query")
	require.NoError(t, err)
	_, err = r.Search(context.Background(), "same query")
	require.NoError(t, err)

	assert.Equal(t, 1, oracle.calls)
	st := r.Stats()
	assert.Equal(t, 2, st.Searches)
	assert.Equal(t, 1, st.CacheHits)
}

func TestSearchUsesDurableCache(t *testing.T) {
	ix, err := memory.OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	oracle := &scriptedOracle{response: "answer"}
	r := newTestResearcher(t, oracle, ix)
	_, err = r.Search(context.Background(), "durable query")
	require.NoError(t, err)

	// A fresh researcher with an empty in-process cache still finds the
	// result through the index.
	r2 := newTestResearcher(t, &scriptedOracle{err: errors.New("should not be called")}, ix)
	out, err := r2.Search(context.Background(), "durable query")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 1, r2.Stats().CacheHits)
}

func TestLocalTextDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("release checklist"), 0644))

	r := newTestResearcher(t, &scriptedOracle{}, nil)
	out, err := r.Search(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "release checklist", out)
}

func TestRestrictedDocumentIsDenied(t *testing.T) {
	r := newTestResearcher(t, &scriptedOracle{}, nil)

	// /etc/hostname exists on the test systems we care about; skip otherwise
	if _, err := os.Stat("/etc/hostname"); err != nil {
		t.Skip("no /etc/hostname on this system")
	}
	_, err := r.Search(context.Background(), "/etc/hostname")
	assert.ErrorContains(t, err, "access denied")
}

func TestURLFetchAndSummarize(t *testing.T) {
	para := strings.Repeat("Structured concurrency keeps goroutine lifetimes tied to a scope, which makes shutdown and error propagation tractable in large services. ", 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Concurrency Notes</title></head><body><article><h1>Concurrency Notes</h1><p>%s</p><p>%s</p><p>%s</p></article></body></html>`, para, para, para)
	}))
	defer srv.Close()

	oracle := &scriptedOracle{response: "summary of the page"}
	r := newTestResearcher(t, oracle, nil)

	out, err := r.Search(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "summary of the page", out)
	assert.Equal(t, 1, oracle.calls)
}

func TestURLSummarizeFailureFallsBackToExtract(t *testing.T) {
	para := strings.Repeat("The scheduler multiplexes goroutines onto a small pool of operating system threads and parks blocked ones cheaply. ", 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Scheduler</title></head><body><article><h1>Scheduler</h1><p>%s</p><p>%s</p><p>%s</p></article></body></html>`, para, para, para)
	}))
	defer srv.Close()

	r := newTestResearcher(t, &scriptedOracle{err: errors.New("oracle down")}, nil)
	out, err := r.Search(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "scheduler multiplexes goroutines")
}

func TestRowsToMarkdown(t *testing.T) {
	got := rowsToMarkdown([][]string{
		{"name", "qty"},
		{"bolts", "12"},
		{"pipe|joint", "3"},
	})
	assert.Contains(t, got, "| name | qty |")
	assert.Contains(t, got, "| --- | --- |")
	assert.Contains(t, got, `| pipe\|joint | 3 |`)
}
