package diaglog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConstraintSeedsSameLine(t *testing.T) {
	logs := []string{
		"Program PERPHjGBqRHArX4DySjwM6UJHiR3sWAatqfdBS2qQJu invoke [1]",
		"Program log: AnchorError caused by account: position. Error Code: ConstraintSeeds. Error Number: 2006. Error Message: A seeds constraint was violated.",
		"Program log: Left: 8ezpneRznTJhdeoZmeBXRk8vUnQoCGCSXfUdh8cLVfJ9",
		"Program log: Right: 4q5PBbae2TNDdr3N7N3Z6mDg1Y6wdBZ4TmQ2qrHsBpmp",
	}

	d := Parse(logs)
	assert.Equal(t, "position", d.Account)
	assert.Equal(t, "ConstraintSeeds", d.ErrorCode)
	assert.Equal(t, 2006, d.ErrorNumber)
	assert.Equal(t, "8ezpneRznTJhdeoZmeBXRk8vUnQoCGCSXfUdh8cLVfJ9", d.Left)
	assert.Equal(t, "4q5PBbae2TNDdr3N7N3Z6mDg1Y6wdBZ4TmQ2qrHsBpmp", d.Right)
}

func TestParseNextLineLayoutMatchesSameLine(t *testing.T) {
	sameLine := []string{
		"Program log: Left: 8ezpneRznTJhdeoZmeBXRk8vUnQoCGCSXfUdh8cLVfJ9",
		"Program log: Right: 4q5PBbae2TNDdr3N7N3Z6mDg1Y6wdBZ4TmQ2qrHsBpmp",
	}
	nextLine := []string{
		"Program log: Left:",
		"Program log: 8ezpneRznTJhdeoZmeBXRk8vUnQoCGCSXfUdh8cLVfJ9",
		"Program log: Right:",
		"Program log: 4q5PBbae2TNDdr3N7N3Z6mDg1Y6wdBZ4TmQ2qrHsBpmp",
	}

	a, b := Parse(sameLine), Parse(nextLine)
	assert.Equal(t, a.Left, b.Left)
	assert.Equal(t, a.Right, b.Right)
}

func TestParseMarkersInEitherOrder(t *testing.T) {
	reversed := []string{
		"Program log: Right: 4q5PBbae2TNDdr3N7N3Z6mDg1Y6wdBZ4TmQ2qrHsBpmp",
		"Program log: Left: 8ezpneRznTJhdeoZmeBXRk8vUnQoCGCSXfUdh8cLVfJ9",
	}

	d := Parse(reversed)
	assert.Equal(t, "8ezpneRznTJhdeoZmeBXRk8vUnQoCGCSXfUdh8cLVfJ9", d.Left)
	assert.Equal(t, "4q5PBbae2TNDdr3N7N3Z6mDg1Y6wdBZ4TmQ2qrHsBpmp", d.Right)
}

func TestParseUnknownAccount(t *testing.T) {
	logs := []string{
		"Program log: Instruction references an unknown account EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
	d := Parse(logs)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", d.UnknownAccount)
}

func TestParseMalformedInputNeverPanics(t *testing.T) {
	cases := [][]string{
		nil,
		{},
		{""},
		{"Left:", "Right:"},
		{"Program log:"},
		{"garbage with no markers at all"},
		{"Left: not-an-address", "Right:"},
	}
	for _, logs := range cases {
		assert.NotPanics(t, func() { Parse(logs) })
	}

	d := Parse([]string{"Left:", "Right:"})
	assert.Equal(t, "Right:", d.Left)
}

func TestParseEmptyOnCleanLogs(t *testing.T) {
	d := Parse([]string{
		"Program PERPHjGBqRHArX4DySjwM6UJHiR3sWAatqfdBS2qQJu invoke [1]",
		"Program PERPHjGBqRHArX4DySjwM6UJHiR3sWAatqfdBS2qQJu success",
	})
	assert.Empty(t, d.Account)
	assert.Empty(t, d.ErrorCode)
	assert.Empty(t, d.Left)
	assert.Empty(t, d.Right)
}
