package pda

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MatchResult records the seed combination that reproduced a target address.
type MatchResult struct {
	Label    string
	Operands []string
	Bump     uint8
}

// Match brute-forces label variants against permutations of the named
// operands (all subset sizes up to four) until one combination derives the
// target address. Used to onboard program versions whose seed layout is
// undocumented.
func Match(programID, target solana.PublicKey, labels []string, operands map[string]solana.PublicKey) (*MatchResult, error) {
	names := make([]string, 0, len(operands))
	for n := range operands {
		names = append(names, n)
	}
	if len(names) > 8 {
		return nil, fmt.Errorf("too many operands (%d); narrow the candidate set", len(names))
	}

	for _, label := range labels {
		for _, perm := range permutations(names, 4) {
			seeds := [][]byte{[]byte(label)}
			for _, n := range perm {
				pk := operands[n]
				seeds = append(seeds, pk.Bytes())
			}
			addr, bump, err := solana.FindProgramAddress(seeds, programID)
			if err != nil {
				continue
			}
			if addr.Equals(target) {
				return &MatchResult{Label: label, Operands: perm, Bump: bump}, nil
			}
		}
	}
	return nil, fmt.Errorf("no label/operand combination derives %s", target)
}

// permutations enumerates ordered selections of names, from the empty
// selection up to maxLen elements, without repetition.
func permutations(names []string, maxLen int) [][]string {
	if maxLen > len(names) {
		maxLen = len(names)
	}
	var out [][]string
	var walk func(current []string, used map[string]bool)
	walk = func(current []string, used map[string]bool) {
		out = append(out, append([]string(nil), current...))
		if len(current) == maxLen {
			return
		}
		for _, n := range names {
			if used[n] {
				continue
			}
			used[n] = true
			walk(append(current, n), used)
			used[n] = false
		}
	}
	walk(nil, make(map[string]bool, len(names)))
	return out
}
