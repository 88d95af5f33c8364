/*

Package did encodes Ed25519 public keys as self-describing did:key
identifiers and decodes them back without any external lookup.

Format:

	did:key:z<base58btc(0xed 0x01 || 32-byte public key)>

- did:key: is the scheme prefix
- z is the multibase marker for base58btc
- 0xed 0x01 is the unsigned varint of multicodec ed25519-pub

Decode rejects, in this order: a missing scheme prefix, a missing
multibase marker, a body that is not base58btc, a decoded length other
than 34 bytes, and a tag other than ed25519-pub.

*/

package did
