package ruleset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/nftctl/internal/nft"
)

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily("")
	require.NoError(t, err)
	assert.Equal(t, FamilyIP, f)

	f, err = ParseFamily("INET")
	require.NoError(t, err)
	assert.Equal(t, FamilyINet, f)

	_, err = ParseFamily("ipv4")
	assert.ErrorIs(t, err, nft.ErrUsage)
}

func TestPriority_String(t *testing.T) {
	tests := []struct {
		in   Priority
		want string
	}{
		{"", "0"},
		{"-150", "-150"},
		{"filter", "filter"},
		{"mangle-5", "mangle - 5"},
		{"srcnat + 10", "srcnat + 10"},
		{"dstnat+0", "dstnat"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Priority(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseChainSpec_Validate(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		spec   BaseChainSpec
		ok     bool
	}{
		{"filter input", FamilyINet, BaseChainSpec{Type: TypeFilter, Hook: HookInput}, true},
		{"nat in ip", FamilyIP, BaseChainSpec{Type: TypeNAT, Hook: HookPostrouting, Priority: "srcnat"}, true},
		{"route in ip6", FamilyIP6, BaseChainSpec{Type: TypeRoute, Hook: HookOutput}, true},
		{"nat in inet", FamilyINet, BaseChainSpec{Type: TypeNAT, Hook: HookPrerouting}, false},
		{"route in bridge", FamilyBridge, BaseChainSpec{Type: TypeRoute, Hook: HookOutput}, false},
		{"unknown type", FamilyIP, BaseChainSpec{Type: "mangle", Hook: HookInput}, false},
		{"arp forward", FamilyARP, BaseChainSpec{Type: TypeFilter, Hook: HookForward}, false},
		{"arp input", FamilyARP, BaseChainSpec{Type: TypeFilter, Hook: HookInput}, true},
		{"ingress outside netdev", FamilyIP, BaseChainSpec{Type: TypeFilter, Hook: HookIngress}, false},
		{"netdev without device", FamilyNetdev, BaseChainSpec{Type: TypeFilter, Hook: HookIngress}, false},
		{"netdev with device", FamilyNetdev, BaseChainSpec{Type: TypeFilter, Hook: HookIngress, Device: "eth0"}, true},
		{"device outside netdev", FamilyIP, BaseChainSpec{Type: TypeFilter, Hook: HookInput, Device: "eth0"}, false},
		{"bad priority name", FamilyIP, BaseChainSpec{Type: TypeFilter, Hook: HookInput, Priority: "early"}, false},
		{"bad priority", FamilyIP, BaseChainSpec{Type: TypeFilter, Hook: HookInput, Priority: "filter*2"}, false},
		{"bad policy", FamilyIP, BaseChainSpec{Type: TypeFilter, Hook: HookInput, Policy: "reject"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(tt.family)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, nft.ErrUsage)
			}
		})
	}
}

func TestBaseChainSpec_Body(t *testing.T) {
	spec := BaseChainSpec{Type: TypeNAT, Hook: HookPostrouting, Priority: "srcnat+1", Policy: PolicyAccept}
	assert.Equal(t, "{ type nat hook postrouting priority srcnat + 1 ; policy accept ; }", spec.body())

	spec = BaseChainSpec{Type: TypeFilter, Hook: HookIngress, Device: "lan0"}
	assert.Equal(t, "{ type filter hook ingress device lan0 priority 0 ; policy accept ; }", spec.body())
}

func TestCheckName(t *testing.T) {
	assert.NoError(t, checkName("chain", "input-v4_2"))
	for _, bad := range []string{"", "a b", `a"b`, "a{", "a;", "a#b", "@set", "$var"} {
		assert.ErrorIs(t, checkName("chain", bad), nft.ErrUsage, bad)
	}
}

func TestSetSpec(t *testing.T) {
	spec := SetSpec{
		Type:       "ipv4_addr . inet_service",
		Flags:      []string{"interval", "timeout"},
		Timeout:    90 * time.Minute,
		GCInterval: 30 * time.Second,
		Size:       1024,
		Policy:     "memory",
		AutoMerge:  true,
		Elements:   []string{"10.0.0.1 . 22", "10.0.0.2 . 80"},
	}
	require.NoError(t, spec.Validate())
	assert.Equal(t,
		"{ type ipv4_addr . inet_service ; flags interval,timeout ; timeout 1h30m ; gc-interval 30s ; "+
			"size 1024 ; policy memory ; auto-merge ; elements = { 10.0.0.1 . 22, 10.0.0.2 . 80 } ; }",
		spec.body())

	assert.ErrorIs(t, SetSpec{}.Validate(), nft.ErrUsage)
	assert.ErrorIs(t, SetSpec{Type: "ipv4_addr", Flags: []string{"sorted"}}.Validate(), nft.ErrUsage)
	assert.ErrorIs(t, SetSpec{Type: "ipv4_addr", Policy: "fast"}.Validate(), nft.ErrUsage)
	assert.ErrorIs(t, SetSpec{Type: "ipv4_addr", Elements: []string{"{1}"}}.Validate(), nft.ErrUsage)
	assert.ErrorIs(t, SetSpec{Type: "ipv4_addr . string"}.Validate(), nft.ErrUsage)
}

func TestNftDuration(t *testing.T) {
	assert.Equal(t, "0s", nftDuration(0))
	assert.Equal(t, "500ms", nftDuration(500*time.Millisecond))
	assert.Equal(t, "2d3h", nftDuration(51*time.Hour))
	assert.Equal(t, "1m1s", nftDuration(61*time.Second))
}

func TestParseElements(t *testing.T) {
	listing := `table ip t {
	set big {
		type ipv4_addr
		elements = { 10.0.0.1, 10.0.0.2,
			     10.0.0.3 }
	}
}`
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, parseElements(listing))
	assert.Empty(t, parseElements("table ip t {\n\tset s {\n\t\ttype mark\n\t}\n}"))
}

func TestParseCounter(t *testing.T) {
	assert.Equal(t, &CounterValue{Packets: 7, Bytes: 420},
		parseCounter("table ip t {\n\tcounter c {\n\t\tpackets 7 bytes 420\n\t}\n}"))
	assert.Nil(t, parseCounter("table ip t {\n}"))
}

func TestParseRules(t *testing.T) {
	c := &Chain{name: "input"}
	listing := `table inet filter { # handle 4
	chain input { # handle 1
		type filter hook input priority filter; policy drop;
		ct state established,related accept # handle 5
		iifname "lo" accept # handle 6
		tcp dport { 22, 443 } accept comment "#ssh" # handle 9
	}
}`
	rules := parseRules(c, listing)
	require.Len(t, rules, 3)
	assert.Equal(t, uint64(5), rules[0].Handle())
	assert.Equal(t, `iifname "lo" accept`, rules[1].Statement())
	assert.Equal(t, `tcp dport { 22, 443 } accept comment "#ssh"`, rules[2].Statement())
	assert.Same(t, c, rules[2].Chain())
}

func TestStripNoiseAndDiff(t *testing.T) {
	running := "table ip t { # handle 3\n\tcounter c { # handle 2\n\t\tpackets 4 bytes 240\n\t}\n\n\tchain c { # handle 1\n\t\taccept # handle 7\n\t}\n}"
	saved := "table ip t { # handle 1\n\tcounter c { # handle 9\n\t\tpackets 0 bytes 0\n\t}\n\tchain c { # handle 2\n\t\taccept # handle 3\n\t}\n}"

	assert.Equal(t, "table ip t {\n\tcounter c {\n\t}\n\tchain c {\n\t\taccept\n\t}\n}", StripNoise(running))
	assert.Empty(t, Diff(saved, running, "saved", "running"))

	changed := "table ip t {\n\tcounter c {\n\t}\n\tchain c {\n\t\tdrop\n\t}\n}"
	d := Diff(saved, changed, "saved", "running")
	assert.Contains(t, d, "--- saved")
	assert.Contains(t, d, "+++ running")
	assert.Contains(t, d, "-\t\taccept")
	assert.Contains(t, d, "+\t\tdrop")
}

func TestSetSpec_TypedElements(t *testing.T) {
	ok := []SetSpec{
		{Type: "ipv4_addr", Flags: []string{"interval"}, Elements: []string{"10.0.0.0/8", "192.168.1.1-192.168.1.9"}},
		{Type: "ipv6_addr", Elements: []string{"2001:db8::1"}},
		{Type: "inet_service", Elements: []string{"22", "8000-8080", "https"}},
		{Type: "ether_addr", Elements: []string{"02:00:00:00:00:01"}},
	}
	for _, spec := range ok {
		assert.NoError(t, spec.Validate(), spec.Type)
	}

	bad := []SetSpec{
		{Type: "ipv4_addr", Elements: []string{"2001:db8::1"}},
		{Type: "ipv6_addr", Elements: []string{"10.0.0.1"}},
		{Type: "inet_service", Elements: []string{"70000"}},
	}
	for _, spec := range bad {
		assert.ErrorIs(t, spec.Validate(), nft.ErrUsage, spec.Type)
	}

	assert.ErrorIs(t, BaseChainSpec{Type: TypeFilter, Hook: HookIngress, Device: "a-very-long-interface"}.Validate(FamilyNetdev), nft.ErrUsage)
}
