// Package models holds the value types shared by the dex, bridge and engine packages
// together with the JSON shapes they export.
package models

import "strings"

// Token identifies a fungible asset on one chain
type Token struct {
	// Address or chain specific location (e.g. a MultiLocation on Substrate chains),
	// the only identification of the asset
	ID       string `json:"id" toml:"id"`
	Name     string `json:"name" toml:"name"`
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals int    `json:"decimals" toml:"decimals"`
}

// Key returns the normalized identity of the token.
func (t Token) Key() string {
	return strings.ToLower(t.ID)
}

// Equal reports whether both tokens share the same id, ignoring case.
func (t Token) Equal(other Token) bool {
	return strings.EqualFold(t.ID, other.ID)
}

// IsZero reports whether the token carries no id.
func (t Token) IsZero() bool {
	return t.ID == ""
}
