package model

import (
	"errors"
	"fmt"
	"strings"
)

// Credential field names as they appear on the wire and in the sealed payload.
const (
	FieldAPIKey     = "api_key"
	FieldSecretKey  = "secret_key"
	FieldPassphrase = "passphrase"
)

// CatalogVersion identifies the revision of the compiled-in exchange catalog.
// Bump it whenever an entry is added, removed, or changes its passphrase flag.
const CatalogVersion = 1

// ExchangeDefinition describes a supported trading platform and the
// credential fields it requires.
type ExchangeDefinition struct {
	ID                 string
	DisplayName        string
	RequiresPassphrase bool
}

// RequiredFields returns the credential field names this exchange requires,
// in canonical order.
func (d ExchangeDefinition) RequiredFields() []string {
	if d.RequiresPassphrase {
		return []string{FieldAPIKey, FieldSecretKey, FieldPassphrase}
	}
	return []string{FieldAPIKey, FieldSecretKey}
}

// Registry is an immutable, ordered catalog of exchange definitions.
type Registry struct {
	version int
	defs    []ExchangeDefinition
	byID    map[string]ExchangeDefinition
}

// NewRegistry builds a registry from defs. IDs are normalized with
// NormalizeExchangeID; empty or duplicate IDs are rejected.
func NewRegistry(version int, defs ...ExchangeDefinition) (*Registry, error) {
	r := &Registry{
		version: version,
		defs:    make([]ExchangeDefinition, 0, len(defs)),
		byID:    make(map[string]ExchangeDefinition, len(defs)),
	}

	for _, d := range defs {
		d.ID = NormalizeExchangeID(d.ID)
		if d.ID == "" {
			return nil, errors.New("exchange definition with empty id")
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate exchange id %q", d.ID)
		}
		if d.DisplayName == "" {
			d.DisplayName = d.ID
		}
		r.defs = append(r.defs, d)
		r.byID[d.ID] = d
	}

	return r, nil
}

// DefaultRegistry returns the reference catalog of supported exchanges.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(CatalogVersion,
		ExchangeDefinition{ID: "binance", DisplayName: "Binance"},
		ExchangeDefinition{ID: "kucoin", DisplayName: "KuCoin", RequiresPassphrase: true},
		ExchangeDefinition{ID: "gateio", DisplayName: "Gate.io"},
		ExchangeDefinition{ID: "bybit", DisplayName: "Bybit"},
		ExchangeDefinition{ID: "mexc", DisplayName: "MEXC"},
		ExchangeDefinition{ID: "bitget", DisplayName: "Bitget", RequiresPassphrase: true},
		ExchangeDefinition{ID: "okx", DisplayName: "OKX", RequiresPassphrase: true},
		ExchangeDefinition{ID: "blofin", DisplayName: "BloFin"},
		ExchangeDefinition{ID: "woo", DisplayName: "WOO X"},
		ExchangeDefinition{ID: "coinbase", DisplayName: "Coinbase"},
	)
	if err != nil {
		panic("model: invalid default exchange catalog: " + err.Error())
	}
	return r
}

// Lookup returns the definition for id. The id is normalized before lookup.
func (r *Registry) Lookup(id string) (ExchangeDefinition, bool) {
	d, ok := r.byID[NormalizeExchangeID(id)]
	return d, ok
}

// All returns a copy of every definition in catalog order.
func (r *Registry) All() []ExchangeDefinition {
	out := make([]ExchangeDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// IDs returns every exchange id in catalog order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		ids = append(ids, d.ID)
	}
	return ids
}

// Version returns the catalog revision.
func (r *Registry) Version() int {
	return r.version
}

// NormalizeExchangeID lowercases and trims an exchange slug.
func NormalizeExchangeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
