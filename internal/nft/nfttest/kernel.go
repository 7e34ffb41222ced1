package nfttest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	msgExists   = "Error: Could not process rule: File exists"
	msgNotFound = "Error: Could not process rule: No such file or directory"
	msgBusy     = "Error: Could not process rule: Device or resource busy"
)

var families = map[string]bool{
	"ip": true, "ip6": true, "inet": true, "arp": true, "bridge": true, "netdev": true,
}

var verdictRe = regexp.MustCompile(`\b(?:jump|goto)\s+"?([^"\s;,}]+)"?`)

// Kernel is the emulated ruleset. It understands the subset of the nft
// command language the ruleset package emits and answers in nft's format.
type Kernel struct {
	mu         sync.Mutex
	tables     []*table
	nextHandle uint64
}

type table struct {
	family   string
	name     string
	handle   uint64
	next     uint64
	chains   []*chain
	sets     []*set
	counters []*counter
}

type chain struct {
	name   string
	handle uint64
	base   string
	rules  []*rule
}

type rule struct {
	handle uint64
	text   string
}

type set struct {
	name     string
	handle   uint64
	decls    []string
	elements []string
}

type counter struct {
	name    string
	handle  uint64
	packets uint64
	bytes   uint64
}

// NewKernel returns an empty ruleset.
func NewKernel() *Kernel {
	return &Kernel{}
}

// failure is an nft error answer: the message, the input and a caret line.
type failure struct {
	msg string
}

func fail(msg string) *failure { return &failure{msg: msg} }

// Exec runs one command line and returns body lines and error lines.
func (k *Kernel) Exec(line string) (body, errLines []string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, nil
	}
	out, f := k.exec(tokens)
	if f != nil {
		width := len(line)
		if width == 0 {
			width = 1
		}
		return nil, []string{f.msg, line, strings.Repeat("^", width)}
	}
	return out, nil
}

func syntaxError(tok string) *failure {
	return &failure{msg: fmt.Sprintf("Error: syntax error, unexpected %s", tok)}
}

func (k *Kernel) exec(t []string) ([]string, *failure) {
	if len(t) < 2 {
		return nil, syntaxError("end of file")
	}
	verb, obj, args := t[0], t[1], t[2:]

	switch verb {
	case "add", "create":
		excl := verb == "create"
		switch obj {
		case "table":
			return nil, k.addTable(args, excl)
		case "chain":
			return nil, k.addChain(args, excl)
		case "rule":
			return k.addRule(args, false)
		case "set":
			return nil, k.addSet(args, excl)
		case "element":
			return nil, k.addElements(args, excl)
		case "counter":
			return nil, k.addCounter(args, excl)
		}
	case "insert":
		if obj == "rule" {
			return k.addRule(args, true)
		}
	case "replace":
		if obj == "rule" {
			return k.replaceRule(args)
		}
	case "delete":
		switch obj {
		case "table":
			return nil, k.deleteTable(args)
		case "chain":
			return nil, k.deleteChain(args)
		case "rule":
			return nil, k.deleteRule(args)
		case "set":
			return nil, k.deleteSet(args)
		case "element":
			return nil, k.deleteElements(args)
		case "counter":
			return nil, k.deleteCounter(args)
		}
	case "flush":
		switch obj {
		case "ruleset":
			k.tables = nil
			return nil, nil
		case "table":
			return nil, k.flushTable(args)
		case "chain":
			return nil, k.flushChain(args)
		case "set":
			return nil, k.flushSet(args)
		}
	case "list":
		switch obj {
		case "ruleset":
			var out []string
			for _, tb := range k.tables {
				out = append(out, tb.render(nil)...)
			}
			return out, nil
		case "tables":
			var out []string
			for _, tb := range k.tables {
				out = append(out, fmt.Sprintf("table %s %s", tb.family, tb.name))
			}
			return out, nil
		case "table":
			return k.listTable(args)
		case "chain":
			return k.listChain(args)
		case "set":
			return k.listSet(args)
		case "counter":
			return k.listCounter(args, false)
		}
	case "reset":
		if obj == "counter" {
			return k.listCounter(args, true)
		}
	}
	return nil, syntaxError(obj)
}

// family splits an optional leading family token off args.
func family(args []string) (string, []string) {
	if len(args) > 0 && families[args[0]] {
		return args[0], args[1:]
	}
	return "ip", args
}

func (k *Kernel) findTable(fam, name string) *table {
	for _, tb := range k.tables {
		if tb.family == fam && tb.name == name {
			return tb
		}
	}
	return nil
}

// lookupTable resolves "[family] table" and returns the remaining args.
func (k *Kernel) lookupTable(args []string) (*table, []string, *failure) {
	fam, rest := family(args)
	if len(rest) < 1 {
		return nil, nil, syntaxError("end of file")
	}
	tb := k.findTable(fam, rest[0])
	if tb == nil {
		return nil, nil, fail(msgNotFound)
	}
	return tb, rest[1:], nil
}

func (k *Kernel) lookupChain(args []string) (*table, *chain, []string, *failure) {
	tb, rest, f := k.lookupTable(args)
	if f != nil {
		return nil, nil, nil, f
	}
	if len(rest) < 1 {
		return nil, nil, nil, syntaxError("end of file")
	}
	c := tb.chain(rest[0])
	if c == nil {
		return nil, nil, nil, fail(msgNotFound)
	}
	return tb, c, rest[1:], nil
}

func (tb *table) allocHandle() uint64 {
	tb.next++
	return tb.next
}

func (tb *table) chain(name string) *chain {
	for _, c := range tb.chains {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (tb *table) set(name string) *set {
	for _, s := range tb.sets {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (tb *table) counter(name string) *counter {
	for _, c := range tb.counters {
		if c.name == name {
			return c
		}
	}
	return nil
}

// referenced reports whether any rule in the table jumps or goes to name.
func (tb *table) referenced(name string) bool {
	for _, c := range tb.chains {
		for _, r := range c.rules {
			for _, m := range verdictRe.FindAllStringSubmatch(r.text, -1) {
				if m[1] == name {
					return true
				}
			}
		}
	}
	return false
}

func (k *Kernel) addTable(args []string, excl bool) *failure {
	fam, rest := family(args)
	if len(rest) < 1 {
		return syntaxError("end of file")
	}
	if k.findTable(fam, rest[0]) != nil {
		if excl {
			return fail(msgExists)
		}
		return nil
	}
	k.nextHandle++
	k.tables = append(k.tables, &table{family: fam, name: rest[0], handle: k.nextHandle})
	return nil
}

func (k *Kernel) deleteTable(args []string) *failure {
	tb, _, f := k.lookupTable(args)
	if f != nil {
		return f
	}
	for i, x := range k.tables {
		if x == tb {
			k.tables = append(k.tables[:i], k.tables[i+1:]...)
			break
		}
	}
	return nil
}

func (k *Kernel) flushTable(args []string) *failure {
	tb, _, f := k.lookupTable(args)
	if f != nil {
		return f
	}
	for _, c := range tb.chains {
		c.rules = nil
	}
	for _, s := range tb.sets {
		s.elements = nil
	}
	return nil
}

func (k *Kernel) listTable(args []string) ([]string, *failure) {
	tb, _, f := k.lookupTable(args)
	if f != nil {
		return nil, f
	}
	return tb.render(nil), nil
}

func (k *Kernel) addChain(args []string, excl bool) *failure {
	tb, rest, f := k.lookupTable(args)
	if f != nil {
		return f
	}
	if len(rest) < 1 {
		return syntaxError("end of file")
	}
	name := rest[0]
	if tb.chain(name) != nil {
		if excl {
			return fail(msgExists)
		}
		return nil
	}
	c := &chain{name: name, handle: tb.allocHandle()}
	if spec := rest[1:]; len(spec) > 0 {
		base := strings.TrimSpace(strings.Join(spec, " "))
		base = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(base, "{"), "}"))
		c.base = strings.ReplaceAll(base, " ;", ";")
	}
	tb.chains = append(tb.chains, c)
	return nil
}

func (k *Kernel) flushChain(args []string) *failure {
	_, c, _, f := k.lookupChain(args)
	if f != nil {
		return f
	}
	c.rules = nil
	return nil
}

func (k *Kernel) deleteChain(args []string) *failure {
	tb, c, _, f := k.lookupChain(args)
	if f != nil {
		return f
	}
	if len(c.rules) > 0 || tb.referenced(c.name) {
		return fail(msgBusy)
	}
	for i, x := range tb.chains {
		if x == c {
			tb.chains = append(tb.chains[:i], tb.chains[i+1:]...)
			break
		}
	}
	return nil
}

func (k *Kernel) listChain(args []string) ([]string, *failure) {
	tb, c, _, f := k.lookupChain(args)
	if f != nil {
		return nil, f
	}
	return tb.render(func(kind, name string) bool { return kind == "chain" && name == c.name }), nil
}

// position consumes an optional "position N" clause.
func position(args []string) (uint64, []string, *failure) {
	if len(args) >= 2 && args[0] == "position" {
		h, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return 0, nil, syntaxError(args[1])
		}
		return h, args[2:], nil
	}
	return 0, args, nil
}

func (c *chain) index(handle uint64) int {
	for i, r := range c.rules {
		if r.handle == handle {
			return i
		}
	}
	return -1
}

// checkTargets fails when a statement jumps to a chain that does not exist.
func (k *Kernel) checkTargets(tb *table, stmt string) *failure {
	for _, m := range verdictRe.FindAllStringSubmatch(stmt, -1) {
		if tb.chain(m[1]) == nil {
			return fail(msgNotFound)
		}
	}
	return nil
}

func (k *Kernel) addRule(args []string, insert bool) ([]string, *failure) {
	tb, c, rest, f := k.lookupChain(args)
	if f != nil {
		return nil, f
	}
	pos, rest, f := position(rest)
	if f != nil {
		return nil, f
	}
	if len(rest) == 0 {
		return nil, syntaxError("end of file")
	}
	stmt := strings.Join(rest, " ")
	if f := k.checkTargets(tb, stmt); f != nil {
		return nil, f
	}

	r := &rule{handle: tb.allocHandle(), text: stmt}
	at := len(c.rules)
	if insert {
		at = 0
	}
	if pos != 0 {
		i := c.index(pos)
		if i < 0 {
			return nil, fail(msgNotFound)
		}
		at = i
		if !insert {
			at = i + 1
		}
	}
	c.rules = append(c.rules, nil)
	copy(c.rules[at+1:], c.rules[at:])
	c.rules[at] = r

	return []string{fmt.Sprintf("add rule %s %s %s %s # handle %d", tb.family, tb.name, c.name, stmt, r.handle)}, nil
}

// ruleHandle consumes a mandatory "handle N" clause.
func ruleHandle(args []string) (uint64, []string, *failure) {
	if len(args) < 2 || args[0] != "handle" {
		return 0, nil, syntaxError("end of file")
	}
	h, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return 0, nil, syntaxError(args[1])
	}
	return h, args[2:], nil
}

func (k *Kernel) replaceRule(args []string) ([]string, *failure) {
	tb, c, rest, f := k.lookupChain(args)
	if f != nil {
		return nil, f
	}
	h, rest, f := ruleHandle(rest)
	if f != nil {
		return nil, f
	}
	if len(rest) == 0 {
		return nil, syntaxError("end of file")
	}
	i := c.index(h)
	if i < 0 {
		return nil, fail(msgNotFound)
	}
	stmt := strings.Join(rest, " ")
	if f := k.checkTargets(tb, stmt); f != nil {
		return nil, f
	}
	c.rules[i].text = stmt
	return []string{fmt.Sprintf("replace rule %s %s %s handle %d %s", tb.family, tb.name, c.name, h, stmt)}, nil
}

func (k *Kernel) deleteRule(args []string) *failure {
	_, c, rest, f := k.lookupChain(args)
	if f != nil {
		return f
	}
	h, _, f := ruleHandle(rest)
	if f != nil {
		return f
	}
	i := c.index(h)
	if i < 0 {
		return fail(msgNotFound)
	}
	c.rules = append(c.rules[:i], c.rules[i+1:]...)
	return nil
}

// braced returns the text between the first "{" and the last "}".
func braced(args []string) string {
	s := strings.Join(args, " ")
	i := strings.Index(s, "{")
	j := strings.LastIndex(s, "}")
	if i < 0 || j < i {
		return ""
	}
	return strings.TrimSpace(s[i+1 : j])
}

func splitElements(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (k *Kernel) addSet(args []string, excl bool) *failure {
	tb, rest, f := k.lookupTable(args)
	if f != nil {
		return f
	}
	if len(rest) < 1 {
		return syntaxError("end of file")
	}
	name := rest[0]
	if tb.set(name) != nil {
		if excl {
			return fail(msgExists)
		}
		return nil
	}

	s := &set{name: name, handle: tb.allocHandle()}
	body := braced(rest[1:])
	if i := strings.Index(body, "elements"); i >= 0 {
		elems := body[i:]
		if j := strings.Index(elems, "{"); j >= 0 {
			if l := strings.Index(elems, "}"); l > j {
				s.elements = splitElements(elems[j+1 : l])
				body = body[:i] + elems[l+1:]
			}
		}
	}
	hasType := false
	for _, d := range strings.Split(body, ";") {
		if d = strings.TrimSpace(d); d != "" {
			s.decls = append(s.decls, d)
			hasType = hasType || strings.HasPrefix(d, "type ")
		}
	}
	if !hasType {
		return syntaxError("'}'")
	}
	tb.sets = append(tb.sets, s)
	return nil
}

func (k *Kernel) lookupSet(args []string) (*table, *set, []string, *failure) {
	tb, rest, f := k.lookupTable(args)
	if f != nil {
		return nil, nil, nil, f
	}
	if len(rest) < 1 {
		return nil, nil, nil, syntaxError("end of file")
	}
	s := tb.set(rest[0])
	if s == nil {
		return nil, nil, nil, fail(msgNotFound)
	}
	return tb, s, rest[1:], nil
}

func (s *set) has(e string) int {
	for i, x := range s.elements {
		if x == e {
			return i
		}
	}
	return -1
}

func (k *Kernel) addElements(args []string, excl bool) *failure {
	_, s, rest, f := k.lookupSet(args)
	if f != nil {
		return f
	}
	for _, e := range splitElements(braced(rest)) {
		if s.has(e) >= 0 {
			if excl {
				return fail(msgExists)
			}
			continue
		}
		s.elements = append(s.elements, e)
	}
	return nil
}

func (k *Kernel) deleteElements(args []string) *failure {
	_, s, rest, f := k.lookupSet(args)
	if f != nil {
		return f
	}
	elems := splitElements(braced(rest))
	for _, e := range elems {
		if s.has(e) < 0 {
			return fail(msgNotFound)
		}
	}
	for _, e := range elems {
		i := s.has(e)
		s.elements = append(s.elements[:i], s.elements[i+1:]...)
	}
	return nil
}

func (k *Kernel) flushSet(args []string) *failure {
	_, s, _, f := k.lookupSet(args)
	if f != nil {
		return f
	}
	s.elements = nil
	return nil
}

func (k *Kernel) deleteSet(args []string) *failure {
	tb, s, _, f := k.lookupSet(args)
	if f != nil {
		return f
	}
	for _, c := range tb.chains {
		for _, r := range c.rules {
			if strings.Contains(r.text, "@"+s.name) {
				return fail(msgBusy)
			}
		}
	}
	for i, x := range tb.sets {
		if x == s {
			tb.sets = append(tb.sets[:i], tb.sets[i+1:]...)
			break
		}
	}
	return nil
}

func (k *Kernel) listSet(args []string) ([]string, *failure) {
	tb, s, _, f := k.lookupSet(args)
	if f != nil {
		return nil, f
	}
	return tb.render(func(kind, name string) bool { return kind == "set" && name == s.name }), nil
}

func (k *Kernel) addCounter(args []string, excl bool) *failure {
	tb, rest, f := k.lookupTable(args)
	if f != nil {
		return f
	}
	if len(rest) < 1 {
		return syntaxError("end of file")
	}
	if tb.counter(rest[0]) != nil {
		if excl {
			return fail(msgExists)
		}
		return nil
	}
	tb.counters = append(tb.counters, &counter{name: rest[0], handle: tb.allocHandle()})
	return nil
}

func (k *Kernel) lookupCounter(args []string) (*table, *counter, *failure) {
	tb, rest, f := k.lookupTable(args)
	if f != nil {
		return nil, nil, f
	}
	if len(rest) < 1 {
		return nil, nil, syntaxError("end of file")
	}
	c := tb.counter(rest[0])
	if c == nil {
		return nil, nil, fail(msgNotFound)
	}
	return tb, c, nil
}

func (k *Kernel) deleteCounter(args []string) *failure {
	tb, c, f := k.lookupCounter(args)
	if f != nil {
		return f
	}
	for i, x := range tb.counters {
		if x == c {
			tb.counters = append(tb.counters[:i], tb.counters[i+1:]...)
			break
		}
	}
	return nil
}

// listCounter prints the counter; with reset it zeroes it afterwards, as
// `nft reset counter` does.
func (k *Kernel) listCounter(args []string, reset bool) ([]string, *failure) {
	tb, c, f := k.lookupCounter(args)
	if f != nil {
		return nil, f
	}
	out := tb.render(func(kind, name string) bool { return kind == "counter" && name == c.name })
	if reset {
		c.packets, c.bytes = 0, 0
	}
	return out, nil
}

// render prints the table in `nft -a list` format. A non-nil only limits
// the output to the matching objects.
func (tb *table) render(only func(kind, name string) bool) []string {
	out := []string{fmt.Sprintf("table %s %s { # handle %d", tb.family, tb.name, tb.handle)}
	var blocks [][]string

	for _, s := range tb.sets {
		if only != nil && !only("set", s.name) {
			continue
		}
		b := []string{fmt.Sprintf("\tset %s { # handle %d", s.name, s.handle)}
		for _, d := range s.decls {
			b = append(b, "\t\t"+d)
		}
		if len(s.elements) > 0 {
			b = append(b, "\t\telements = { "+strings.Join(s.elements, ", ")+" }")
		}
		blocks = append(blocks, append(b, "\t}"))
	}
	for _, c := range tb.counters {
		if only != nil && !only("counter", c.name) {
			continue
		}
		blocks = append(blocks, []string{
			fmt.Sprintf("\tcounter %s { # handle %d", c.name, c.handle),
			fmt.Sprintf("\t\tpackets %d bytes %d", c.packets, c.bytes),
			"\t}",
		})
	}
	for _, c := range tb.chains {
		if only != nil && !only("chain", c.name) {
			continue
		}
		b := []string{fmt.Sprintf("\tchain %s { # handle %d", c.name, c.handle)}
		if c.base != "" {
			b = append(b, "\t\t"+c.base)
		}
		for _, r := range c.rules {
			b = append(b, fmt.Sprintf("\t\t%s # handle %d", r.text, r.handle))
		}
		blocks = append(blocks, append(b, "\t}"))
	}

	for i, b := range blocks {
		if i > 0 {
			out = append(out, "")
		}
		out = append(out, b...)
	}
	return append(out, "}")
}

// SetCounter sets a named counter's values, as traffic would.
func (k *Kernel) SetCounter(fam, tableName, name string, packets, bytes uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	tb := k.findTable(fam, tableName)
	if tb == nil {
		return false
	}
	c := tb.counter(name)
	if c == nil {
		return false
	}
	c.packets, c.bytes = packets, bytes
	return true
}

// Tables returns "family name" for every table, sorted.
func (k *Kernel) Tables() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []string
	for _, tb := range k.tables {
		out = append(out, tb.family+" "+tb.name)
	}
	sort.Strings(out)
	return out
}

// Rules returns the statements of a chain in order, or nil if it is missing.
func (k *Kernel) Rules(fam, tableName, chainName string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	tb := k.findTable(fam, tableName)
	if tb == nil {
		return nil
	}
	c := tb.chain(chainName)
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.text)
	}
	return out
}

// HasChain reports whether the chain exists.
func (k *Kernel) HasChain(fam, tableName, chainName string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	tb := k.findTable(fam, tableName)
	return tb != nil && tb.chain(chainName) != nil
}

// Elements returns a set's elements, or nil if it is missing.
func (k *Kernel) Elements(fam, tableName, setName string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	tb := k.findTable(fam, tableName)
	if tb == nil {
		return nil
	}
	s := tb.set(setName)
	if s == nil {
		return nil
	}
	return append([]string(nil), s.elements...)
}
