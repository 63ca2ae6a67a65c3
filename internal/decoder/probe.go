package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// probe bounds: price-tick style fields stay within a million either way,
// and magnitudes are strictly positive.
const maxTick = 1_000_000

// ProbeResult is a best-effort structural guess, never an exact decode. The
// type is distinct from Record so callers cannot confuse the two.
type ProbeResult struct {
	AnchorOffset int
	LowerTick    int32
	UpperTick    int32
	Magnitude    *big.Int
}

// ProbeDecode scans raw for a known 32-byte anchor value, then searches a
// bounded window after it for two adjacent plausible i32 ticks followed by a
// positive u128 magnitude. Returns nil when nothing plausible is found; the
// only error is a buffer too small to hold the anchor.
func ProbeDecode(raw []byte, anchor solana.PublicKey) (*ProbeResult, error) {
	if len(raw) < 32 {
		return nil, fmt.Errorf("buffer too small to probe (%d bytes)", len(raw))
	}

	at := bytes.Index(raw, anchor.Bytes())
	if at < 0 {
		return nil, nil
	}

	window := raw[at+32:]
	if len(window) > 256 {
		window = window[:256]
	}

	// need 4+4 bytes of ticks plus 16 bytes of magnitude
	for off := 0; off+24 <= len(window); off++ {
		lower := int32(binary.LittleEndian.Uint32(window[off:]))
		upper := int32(binary.LittleEndian.Uint32(window[off+4:]))
		if !plausibleTick(lower) || !plausibleTick(upper) || lower > upper {
			continue
		}
		mag := u128(window[off+8:])
		if mag.Sign() <= 0 {
			continue
		}
		return &ProbeResult{
			AnchorOffset: at,
			LowerTick:    lower,
			UpperTick:    upper,
			Magnitude:    mag,
		}, nil
	}
	return nil, nil
}

func plausibleTick(v int32) bool {
	return v >= -maxTick && v <= maxTick
}

func u128(b []byte) *big.Int {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[i] = b[15-i]
	}
	return new(big.Int).SetBytes(be)
}
