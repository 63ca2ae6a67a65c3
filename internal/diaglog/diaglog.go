// Package diaglog extracts structured diagnostics from simulation log lines.
// Validator output is free-form and changes between program versions, so
// every extractor is best-effort: Parse fills what it can and never fails.
package diaglog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Diagnostic is the partial structure recovered from a failed simulation's
// logs. Any field may be empty.
type Diagnostic struct {
	Account     string
	ErrorCode   string
	ErrorNumber int
	Message     string
	Left        string
	Right       string
	// UnknownAccount is set when the runtime reported an account the
	// transaction never declared.
	UnknownAccount string
}

var (
	base58Pattern  = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)
	accountPattern = regexp.MustCompile(`AnchorError caused by account:\s*(\w+)`)
	codePattern    = regexp.MustCompile(`Error Code: (\w+)\. Error Number: (\d+)\. Error Message: ([^.]+(?:\.[^.]*)*?)\.?$`)
	leftPattern    = regexp.MustCompile(`Left:\s*(\S.*)?$`)
	rightPattern   = regexp.MustCompile(`Right:\s*(\S.*)?$`)
	unknownPattern = regexp.MustCompile(`(?:unknown|An account required by the instruction is missing|instruction references an unknown account)\s*:?\s*(\S*)`)
)

// Parse scans simulation logs for an Anchor-style error report. It tolerates
// the value appearing on the marker's line or the following line, markers in
// either order, and arbitrary "Program log:" prefixes.
func Parse(logs []string) Diagnostic {
	var d Diagnostic

	lines := make([]string, len(logs))
	for i, l := range logs {
		lines[i] = stripPrefix(l)
	}

	for i, line := range lines {
		if m := accountPattern.FindStringSubmatch(line); m != nil && d.Account == "" {
			d.Account = m[1]
		}
		if m := codePattern.FindStringSubmatch(line); m != nil && d.ErrorCode == "" {
			d.ErrorCode = m[1]
			if n, err := strconv.Atoi(m[2]); err == nil {
				d.ErrorNumber = n
			}
			d.Message = strings.TrimSpace(m[3])
		}
		if m := leftPattern.FindStringSubmatch(line); m != nil && d.Left == "" {
			d.Left = valueOrNextLine(m[1], lines, i)
		}
		if m := rightPattern.FindStringSubmatch(line); m != nil && d.Right == "" {
			d.Right = valueOrNextLine(m[1], lines, i)
		}
		if strings.Contains(strings.ToLower(line), "unknown account") ||
			strings.Contains(line, "An account required by the instruction is missing") {
			if d.UnknownAccount == "" {
				d.UnknownAccount = firstBase58(line, lines, i)
			}
		}
	}

	return d
}

func stripPrefix(line string) string {
	line = strings.TrimSpace(line)
	for _, p := range []string{"Program log: ", "Program log:"} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(strings.TrimPrefix(line, p))
		}
	}
	return line
}

// valueOrNextLine returns the same-line capture, or the first non-empty token
// of the following line when the marker ended the line.
func valueOrNextLine(sameLine string, lines []string, i int) string {
	v := strings.TrimSpace(sameLine)
	if v != "" {
		return strings.TrimSuffix(v, ",")
	}
	if i+1 < len(lines) {
		next := strings.TrimSpace(lines[i+1])
		if f := strings.Fields(next); len(f) > 0 {
			return strings.TrimSuffix(f[0], ",")
		}
	}
	return ""
}

// firstBase58 finds the first plausible address on the line or the next one.
func firstBase58(line string, lines []string, i int) string {
	for _, candidate := range append([]string{line}, nextLine(lines, i)...) {
		for _, m := range base58Pattern.FindAllString(candidate, -1) {
			if raw, err := base58.Decode(m); err == nil && len(raw) == 32 {
				return m
			}
		}
	}
	return ""
}

func nextLine(lines []string, i int) []string {
	if i+1 < len(lines) {
		return []string{lines[i+1]}
	}
	return nil
}
