package txbuilder

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	cbSetComputeUnitLimit = 2
	cbSetComputeUnitPrice = 3
)

// computeBudgetInstructions returns the fee-control prefix: a unit-price
// instruction when a priority fee is set, and a unit-limit instruction when
// a limit is set. Each knob is independent.
func (b *Builder) computeBudgetInstructions() []solana.Instruction {
	var ixs []solana.Instruction
	if b.PriorityFee > 0 {
		data := make([]byte, 9)
		data[0] = cbSetComputeUnitPrice
		binary.LittleEndian.PutUint64(data[1:], b.PriorityFee)
		ixs = append(ixs, solana.NewInstruction(computeBudgetProgramID, nil, data))
	}
	if b.ComputeUnitLimit > 0 {
		data := make([]byte, 5)
		data[0] = cbSetComputeUnitLimit
		binary.LittleEndian.PutUint32(data[1:], b.ComputeUnitLimit)
		ixs = append(ixs, solana.NewInstruction(computeBudgetProgramID, nil, data))
	}
	return ixs
}
