package model

// WhitelistKind distinguishes direct bank accounts from convenio codes.
type WhitelistKind string

// Whitelist entry kinds.
const (
	KindAccount  WhitelistKind = "ACCOUNT"
	KindConvenio WhitelistKind = "CONVENIO"
)

// WhitelistEntry is one operator-maintained authorized destination.
type WhitelistEntry struct {
	Value string
	Label string
	Kind  WhitelistKind
}
