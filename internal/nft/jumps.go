package nft

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// JumpRef is a rule that transfers control to another chain.
type JumpRef struct {
	// Chain contains the rule, not the jump target.
	Chain   string
	Handle  uint64
	Verdict string
}

var (
	chainOpenRe = regexp.MustCompile(`^\s*chain\s+"?([^"\s{]+)"?\s*\{`)
	verdictRe   = regexp.MustCompile(`\b(jump|goto)\s+"?([^"\s;,}]+)"?`)
)

// ScanJumps finds every rule in a handle-annotated table listing that jumps
// or goes to target. Rules without a handle annotation cannot be deleted
// and are skipped. A listing the scanner cannot read to the end is an
// error: a missed jump would make the chain delete fail as busy.
func ScanJumps(listing, target string) ([]JumpRef, error) {
	var refs []JumpRef
	current := ""

	sc := bufio.NewScanner(strings.NewReader(listing))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()

		if m := chainOpenRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			continue
		}
		if strings.TrimSpace(line) == "}" {
			current = ""
			continue
		}
		if current == "" {
			continue
		}

		verdict := ""
		for _, m := range verdictRe.FindAllStringSubmatch(line, -1) {
			if m[2] == target {
				verdict = m[1]
				break
			}
		}
		if verdict == "" {
			continue
		}

		h := handleRe.FindStringSubmatch(line)
		if h == nil {
			continue
		}
		handle, err := strconv.ParseUint(h[1], 10, 64)
		if err != nil || handle == 0 {
			continue
		}
		refs = append(refs, JumpRef{Chain: current, Handle: handle, Verdict: verdict})
	}
	if err := sc.Err(); err != nil {
		return refs, fmt.Errorf("%w: scanning listing for jumps to %s: %v", ErrCommandFailed, target, err)
	}
	return refs, nil
}
