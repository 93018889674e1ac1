package types

import "github.com/cespare/xxhash/v2"

// ZoneIdentity identifies a logical trace context. Zones are unique
// by identity: a wtf.zone#create event naming an identity already
// known to the database is ignored as a duplicate (spec.md "Duplicate
// zone create").
type ZoneIdentity struct {
	Name     string
	Type     string
	Location string
}

// Fingerprint returns a stable 64-bit digest of the identity, used as
// a compact zone label in metrics and the HTTP query API instead of
// repeating the full Name/Type/Location triple there.
func (z ZoneIdentity) Fingerprint() uint64 {
	d := xxhash.New()
	d.WriteString(z.Name)
	d.Write([]byte{0})
	d.WriteString(z.Type)
	d.Write([]byte{0})
	d.WriteString(z.Location)
	return d.Sum64()
}
