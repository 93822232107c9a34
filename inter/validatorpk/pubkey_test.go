package validatorpk

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// A valid 65-byte uncompressed secp256k1 key for parsing tests.
const secpHex = "045b86101f804f3f4f2012ef31fff807e87de579a3faa7947d1b487a810e35dc2c3b6071ac465046634b5f4a8e09bf8e1f2e7eccb699356b9e6fd496ca4b1677d1"

func ed25519Key(fill byte) PubKey {
	return PubKey{
		Type: Types.Ed25519,
		Raw:  bytes.Repeat([]byte{fill}, 32),
	}
}

func TestFromString(t *testing.T) {
	require := require.New(t)

	exp := PubKey{
		Type: Types.Secp256k1,
		Raw:  common.FromHex(secpHex),
	}

	got, err := FromString("c0" + secpHex)
	require.NoError(err)
	require.Equal(exp, got)

	got, err = FromString("0xc0" + secpHex)
	require.NoError(err)
	require.Equal(exp, got)

	for _, bad := range []string{"", "0x", "-"} {
		_, err := FromString(bad)
		require.Error(err, "input %q", bad)
	}
}

func TestValidate(t *testing.T) {
	require := require.New(t)

	require.NoError(ed25519Key(0xaa).Validate())

	// Wrong size for the scheme.
	short := PubKey{Type: Types.Ed25519, Raw: []byte{1, 2, 3}}
	require.ErrorIs(short.Validate(), ErrKeySize)

	// Unknown scheme tag.
	odd := PubKey{Type: 0x99, Raw: bytes.Repeat([]byte{1}, 32)}
	require.ErrorIs(odd.Validate(), ErrUnknownKey)

	// FromBytes enforces validation.
	_, err := FromBytes([]byte{0x99, 1, 2})
	require.ErrorIs(err, ErrUnknownKey)
	_, err = FromBytes(nil)
	require.ErrorIs(err, ErrEmptyKey)
}

func TestStringRendering(t *testing.T) {
	pk := PubKey{
		Type: Types.Secp256k1,
		Raw:  common.FromHex(secpHex),
	}
	require.Equal(t, "0xc0"+secpHex, pk.String())
}

func TestEmpty(t *testing.T) {
	require.True(t, PubKey{}.Empty())
	require.False(t, ed25519Key(1).Empty())
}

func TestCopyIsDeep(t *testing.T) {
	require := require.New(t)

	original := ed25519Key(0xaa)
	clone := original.Copy()
	require.Equal(original, clone)

	clone.Raw[0] = 0xff
	require.Equal(uint8(0xaa), original.Raw[0])
	require.NotEqual(original, clone)
}

func TestValidatorID(t *testing.T) {
	require := require.New(t)

	a := ed25519Key(1).ValidatorID()
	b := ed25519Key(2).ValidatorID()
	require.NotEqual(a, b)
	require.Equal(a, ed25519Key(1).ValidatorID(), "derivation is deterministic")

	// The scheme tag is part of the identity.
	retagged := ed25519Key(1)
	retagged.Type = Types.Secp256k1
	require.NotEqual(a, retagged.ValidatorID())
}

func TestMarshalRoundTrip(t *testing.T) {
	require := require.New(t)

	original := ed25519Key(0xcc)
	data, err := json.Marshal(&original)
	require.NoError(err)
	require.Equal(`"`+original.String()+`"`, string(data))

	var decoded PubKey
	require.NoError(json.Unmarshal(data, &decoded))
	require.Equal(original, decoded)
}
