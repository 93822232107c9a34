// Package validatorpk handles validator public keys. A PubKey pairs a scheme
// tag with the raw key bytes, so the engine can carry keys around, render
// them in config files and logs, and derive consensus identities without
// committing the rest of the code to one signature scheme.
package validatorpk

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dlc-foundation/go-dlc/inter"
)

// PubKey is a validator's public key.
type PubKey struct {
	// Type tags the signature scheme.
	Type uint8
	// Raw is the key material.
	Raw []byte
}

// Types enumerates the supported schemes. Validators sign with Ed25519;
// Secp256k1 is accepted for imported keys.
var Types = struct {
	Ed25519   uint8
	Secp256k1 uint8
}{
	Ed25519:   0xe0,
	Secp256k1: 0xc0,
}

// Ed25519 raw public keys are 32 bytes.
const ed25519Size = 32

var (
	ErrEmptyKey   = errors.New("validatorpk: empty pubkey")
	ErrUnknownKey = errors.New("validatorpk: unknown pubkey type")
	ErrKeySize    = errors.New("validatorpk: wrong key size")
)

// Empty reports whether the key is uninitialized.
func (pk PubKey) Empty() bool {
	return len(pk.Raw) == 0 && pk.Type == 0
}

// Bytes returns the flat encoding: the type byte followed by the raw key.
func (pk PubKey) Bytes() []byte {
	return append([]byte{pk.Type}, pk.Raw...)
}

// String renders the key as 0x-prefixed hex of Bytes.
func (pk PubKey) String() string {
	return "0x" + common.Bytes2Hex(pk.Bytes())
}

// Copy returns a deep copy; Raw is a slice and must not be shared.
func (pk PubKey) Copy() PubKey {
	return PubKey{
		Type: pk.Type,
		Raw:  common.CopyBytes(pk.Raw),
	}
}

// ValidatorID derives the key's consensus identity: the BLAKE3 digest of the
// typed encoding. The tag byte is inside the digest, so the same raw bytes
// under different schemes name different validators.
func (pk PubKey) ValidatorID() inter.ValidatorID {
	return inter.PubkeyToValidatorID(pk.Bytes())
}

// Validate checks the scheme tag and the key size.
func (pk PubKey) Validate() error {
	switch pk.Type {
	case Types.Ed25519:
		if len(pk.Raw) != ed25519Size {
			return ErrKeySize
		}
	case Types.Secp256k1:
		if len(pk.Raw) != 33 && len(pk.Raw) != 65 {
			return ErrKeySize
		}
	default:
		return ErrUnknownKey
	}
	return nil
}

// FromString parses a hex string, with or without the 0x prefix.
func FromString(str string) (PubKey, error) {
	return FromBytes(common.FromHex(str))
}

// FromBytes reconstructs a PubKey from its flat encoding.
func FromBytes(b []byte) (PubKey, error) {
	if len(b) == 0 {
		return PubKey{}, ErrEmptyKey
	}
	pk := PubKey{Type: b[0], Raw: b[1:]}
	if err := pk.Validate(); err != nil {
		return PubKey{}, err
	}
	return pk, nil
}

// MarshalText renders the key as hex for JSON and TOML configs.
func (pk *PubKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText parses the hex rendering back.
func (pk *PubKey) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*pk = res
	return nil
}
