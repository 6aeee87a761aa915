package pgstore

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPoolCollectorRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	for i := 1; i <= 5; i++ {
		c := newPoolCollector("myuser", "myhost", "mydb", func() stat { return &statMock{} })
		if err := reg.Register(c); err != nil {
			t.Errorf("Register %d: %v", i, err)
		}
	}
}

func TestPoolCollectorValues(t *testing.T) {
	t.Parallel()

	mock := &statMock{
		acquireCount:    7,
		acquireDuration: 1500 * time.Millisecond,
		idleConns:       2,
		maxConns:        4,
		totalConns:      3,
	}

	c := newPoolCollector("myuser", "myhost", "mydb", func() stat { return mock })

	if want, have := 9, testutil.CollectAndCount(c); want != have {
		t.Fatalf("metric count: want %d, have %d", want, have)
	}

	for _, name := range []string{
		"bidvault_pgxpool_acquire_count_total",
		"bidvault_pgxpool_acquire_duration_seconds_total",
		"bidvault_pgxpool_max_conns",
	} {
		if n := testutil.CollectAndCount(c, name); n != 1 {
			t.Errorf("%s: want 1 series, have %d", name, n)
		}
	}

	const expected = `
# HELP bidvault_pgxpool_acquire_duration_seconds_total Total duration of all successful acquires from the pool.
# TYPE bidvault_pgxpool_acquire_duration_seconds_total counter
bidvault_pgxpool_acquire_duration_seconds_total{db_host="myhost",db_name="mydb",db_procpoolid="%ID%",db_user="myuser"} 1.5
`
	// The pool ID is process-global, so read it back from the descriptor.
	id := poolID(t, c)
	if err := testutil.CollectAndCompare(c, strings.NewReader(strings.ReplaceAll(expected, "%ID%", id)), "bidvault_pgxpool_acquire_duration_seconds_total"); err != nil {
		t.Error(err)
	}
}

func poolID(t *testing.T, c *poolCollector) string {
	t.Helper()

	desc := c.metrics[0].desc.String()
	const key = `db_procpoolid="`
	i := strings.Index(desc, key)
	if i < 0 {
		t.Fatalf("no pool id in %s", desc)
	}
	rest := desc[i+len(key):]
	return rest[:strings.IndexByte(rest, '"')]
}

type statMock struct {
	acquireCount         int64
	acquireDuration      time.Duration
	canceledAcquireCount int64
	emptyAcquireCount    int64
	acquiredConns        int32
	constructingConns    int32
	idleConns            int32
	maxConns             int32
	totalConns           int32
}

var _ stat = (*statMock)(nil)

func (m *statMock) AcquireCount() int64            { return m.acquireCount }
func (m *statMock) AcquireDuration() time.Duration { return m.acquireDuration }
func (m *statMock) AcquiredConns() int32           { return m.acquiredConns }
func (m *statMock) CanceledAcquireCount() int64    { return m.canceledAcquireCount }
func (m *statMock) ConstructingConns() int32       { return m.constructingConns }
func (m *statMock) EmptyAcquireCount() int64       { return m.emptyAcquireCount }
func (m *statMock) IdleConns() int32               { return m.idleConns }
func (m *statMock) MaxConns() int32                { return m.maxConns }
func (m *statMock) TotalConns() int32              { return m.totalConns }
