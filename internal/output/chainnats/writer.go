package chainnats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"threatchain/internal/logger"
	"threatchain/pkg/models"
)

// Config configures the NATS writer.
type Config struct {
	URL     string
	Subject string
	Name    string
	Timeout time.Duration
}

// Writer publishes each chain to "<subject>.<severity>".
type Writer struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewWriter connects to NATS.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "threatchain.chains"
	}
	if cfg.Name == "" {
		cfg.Name = "threatchain"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Infof("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	logger.Infof("Chain NATS writer initialized: %s", cfg.Subject)
	return &Writer{
		conn:    conn,
		subject: strings.TrimSuffix(cfg.Subject, "."),
		timeout: cfg.Timeout,
	}, nil
}

// Subject returns the subject a chain is published to.
func (w *Writer) Subject(chain *models.AttackChain) string {
	sev := strings.ToLower(strings.TrimSpace(chain.Severity))
	if sev == "" {
		sev = "unknown"
	}
	return w.subject + "." + sev
}

// WriteChains publishes the chains and flushes the connection.
func (w *Writer) WriteChains(chains []*models.AttackChain) error {
	if len(chains) == 0 {
		return nil
	}
	for _, chain := range chains {
		data, err := json.Marshal(chain)
		if err != nil {
			return fmt.Errorf("marshal chain %s: %w", chain.ID, err)
		}
		if err := w.conn.Publish(w.Subject(chain), data); err != nil {
			return fmt.Errorf("publish chain %s: %w", chain.ID, err)
		}
	}
	if err := w.conn.FlushTimeout(w.timeout); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (w *Writer) Close() error {
	if w.conn == nil || w.conn.IsClosed() {
		return nil
	}
	if err := w.conn.Drain(); err != nil {
		w.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
