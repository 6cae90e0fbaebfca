package pipeline

import "threatchain/pkg/models"

// ChainWriter writes surfaced attack chains.
type ChainWriter interface {
	WriteChains(chains []*models.AttackChain) error
	Close() error
}
