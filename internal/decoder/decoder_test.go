package decoder

import (
	"bytes"
	"encoding/binary"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
)

func encodePosition(t *testing.T, p Position) []byte {
	t.Helper()
	disc := idl.AccountDiscriminator("Position")
	var buf bytes.Buffer
	buf.Write(disc[:])
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(p))
	return buf.Bytes()
}

func TestDecodeMatchesTaggedSchema(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("J1oeQoPeuEDmjvyMwBmCWexzCQup77kbKKxV59CnYbd")
	raw := encodePosition(t, Position{
		Owner:   owner,
		Side:    SideLong,
		SizeUsd: 12_000_000,
	})

	c := NewCatalog()
	rec, err := c.Decode([]string{"Custody", "Position"}, raw)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Position", rec.Schema)

	pos, ok := rec.Value.(*Position)
	require.True(t, ok)
	assert.Equal(t, owner, pos.Owner)
	assert.Equal(t, SideLong, pos.Side)
	assert.Equal(t, uint64(12_000_000), pos.SizeUsd)
}

func TestDecodeMissIsNilNotError(t *testing.T) {
	c := NewCatalog()

	rec, err := c.Decode([]string{"Position"}, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Valid length, wrong tag.
	raw := make([]byte, 200)
	rec, err = c.Decode([]string{"Position"}, raw)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDecodeUnknownSchemaErrors(t *testing.T) {
	c := NewCatalog()
	raw := encodePosition(t, Position{})
	_, err := c.Decode([]string{"Vault"}, raw)
	assert.Error(t, err)
}

func probeBuffer(anchor solana.PublicKey, lower, upper int32, magnitude uint64) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, make([]byte, 16)...) // leading padding
	buf = append(buf, anchor.Bytes()...)
	field := make([]byte, 24)
	binary.LittleEndian.PutUint32(field[0:], uint32(lower))
	binary.LittleEndian.PutUint32(field[4:], uint32(upper))
	binary.LittleEndian.PutUint64(field[8:], magnitude)
	return append(buf, field...)
}

func TestProbeDecodeFindsPlausibleWindow(t *testing.T) {
	anchor := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	raw := probeBuffer(anchor, -440, 200, 987654321)

	res, err := ProbeDecode(raw, anchor)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 16, res.AnchorOffset)
	assert.Equal(t, int32(-440), res.LowerTick)
	assert.Equal(t, int32(200), res.UpperTick)
	assert.Equal(t, int64(987654321), res.Magnitude.Int64())
}

func TestProbeDecodeRejectsOutOfRangeTick(t *testing.T) {
	anchor := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	res, err := ProbeDecode(probeBuffer(anchor, 2_000_000, 2_000_001, 1), anchor)
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = ProbeDecode(probeBuffer(anchor, -2_000_000, 0, 1), anchor)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestProbeDecodeRejectsNonPositiveMagnitude(t *testing.T) {
	anchor := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	res, err := ProbeDecode(probeBuffer(anchor, -100, 100, 0), anchor)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestProbeDecodeEdges(t *testing.T) {
	anchor := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	_, err := ProbeDecode(make([]byte, 16), anchor)
	assert.Error(t, err)

	res, err := ProbeDecode(make([]byte, 128), anchor)
	require.NoError(t, err)
	assert.Nil(t, res)
}
