package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/arena-ledger/ledger"
	"github.com/warp/arena-ledger/ledger/store"
)

func newTestAuditor(t *testing.T, interval time.Duration) (*Auditor, *ledger.Engine) {
	t.Helper()
	engine := ledger.NewEngine(store.NewTxMemory())
	a, err := NewAuditor(engine, log.New(io.Discard), interval)
	require.NoError(t, err)
	return a, engine
}

func TestAuditor_RunOnceRemembersReport(t *testing.T) {
	a, engine := newTestAuditor(t, 0)
	defer a.Stop()

	_, _, ok := a.Last()
	assert.False(t, ok)

	_, err := engine.Players().CreatePlayer(context.Background(), ledger.NewPlayer{FirstName: "Ann", Handed: ledger.HandedLeft})
	require.NoError(t, err)

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())

	last, ranAt, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Players)
	assert.False(t, ranAt.IsZero())
}

func TestAuditor_DisabledDoesNotRun(t *testing.T) {
	a, _ := newTestAuditor(t, 0)
	require.NoError(t, a.Start())
	defer a.Stop()

	time.Sleep(20 * time.Millisecond)
	_, _, ok := a.Last()
	assert.False(t, ok)
}

func TestAuditor_StartRunsImmediately(t *testing.T) {
	// GIVEN: An auditor with a long interval
	// WHEN: It is started
	// THEN: The first audit runs without waiting for the interval
	a, _ := newTestAuditor(t, time.Hour)
	require.NoError(t, a.Start())

	assert.Eventually(t, func() bool {
		_, _, ok := a.Last()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Stop())
}

func TestRunAudit_CachedReport(t *testing.T) {
	ts := newTestServer(t)
	a, err := NewAuditor(ts.h.Engine, log.New(io.Discard), 0)
	require.NoError(t, err)
	defer a.Stop()
	ts.h.Auditor = a

	rec := ts.do(t, http.MethodGet, "/api/admin/audit?cached=true", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/audit?cached=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[AuditReportDTO](t, rec).OK)
}
