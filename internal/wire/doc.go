// Package wire implements the versioned binary codec for the
// meshsync datagram protocol.
//
// Every packet starts with a 4-byte header (version, kind, sequence),
// big-endian throughout. Each packet kind has an explicit encode and
// decode pair; Decode performs tagged dispatch over the kind byte and
// returns a typed payload, so transport code never touches raw
// offsets. Decoders validate remaining length and surface
// domain.ErrMalformedPacket rather than panicking on truncated input.
package wire
