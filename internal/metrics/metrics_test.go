package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altuslabsxyz/txexec/internal/executor"
)

func ms(v int64) *int64 { return &v }

func TestMetrics_UpdateDiagnostics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.UpdateDiagnostics(func(d *executor.Diagnostics) { d.TransactionsInQueue += 3 })
	m.UpdateDiagnostics(func(d *executor.Diagnostics) {
		d.TransactionsInQueue--
		d.TotalTransactions++
	})

	assert.Equal(t, executor.Diagnostics{TransactionsInQueue: 2, TotalTransactions: 1}, m.Snapshot())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inQueue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.total))
}

func TestMetrics_ObserveEvent(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvent(nil, executor.NetworkEvent{TxType: "claim", WaitSubmit: ms(120), WaitConfirm: ms(2500)})
	m.ObserveEvent(nil, executor.NetworkEvent{TxType: "claim", Error: "transaction reverted", WaitError: ms(40)})
	m.ObserveEvent(nil, executor.NetworkEvent{TxType: "mint", WaitSubmit: ms(80)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("claim", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("claim", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("mint", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.waitSubmit))
	assert.Equal(t, 1, testutil.CollectAndCount(m.waitConfirm))
	assert.Equal(t, 1, testutil.CollectAndCount(m.waitError))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.UpdateDiagnostics(func(d *executor.Diagnostics) { d.TransactionsInQueue = 4 })

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "txexec_transactions_in_queue 4"), string(body))
}
