package chainnats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatchain/pkg/models"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestWriteChainsPublishesBySeverity(t *testing.T) {
	ns := runServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	msgs, err := sub.SubscribeSync("alerts.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	w, err := NewWriter(Config{URL: ns.ClientURL(), Subject: "alerts"})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteChains([]*models.AttackChain{
		{ID: "chain-1", Severity: "critical"},
		{ID: "chain-2"},
	}))

	first, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alerts.critical", first.Subject)
	var c models.AttackChain
	require.NoError(t, json.Unmarshal(first.Data, &c))
	assert.Equal(t, "chain-1", c.ID)

	second, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alerts.unknown", second.Subject)
}

func TestCloseIsIdempotent(t *testing.T) {
	ns := runServer(t)

	w, err := NewWriter(Config{URL: ns.ClientURL()})
	require.NoError(t, err)
	require.NoError(t, w.WriteChains(nil))
	require.NoError(t, w.Close())
	assert.Eventually(t, w.conn.IsClosed, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Close())
}
