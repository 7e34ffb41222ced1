//go:build linux

package ruleset

import (
	"errors"
	"testing"

	"github.com/google/nftables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	args := m.Called(family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*nftables.Chain), args.Error(1)
}

func TestNetlinkMappings(t *testing.T) {
	assert.Equal(t, nftables.TableFamilyIPv4, FamilyIP.Netlink())
	assert.Equal(t, nftables.TableFamilyIPv6, FamilyIP6.Netlink())
	assert.Equal(t, nftables.TableFamilyINet, FamilyINet.Netlink())
	assert.Equal(t, nftables.TableFamilyNetdev, FamilyNetdev.Netlink())

	assert.Equal(t, nftables.ChainTypeNAT, TypeNAT.Netlink())
	assert.Equal(t, nftables.ChainHookForward, HookForward.Netlink())
	assert.Nil(t, Hook("egress").Netlink())

	p, err := Priority("mangle+5").Netlink()
	require.NoError(t, err)
	assert.Equal(t, *nftables.ChainPriorityMangle+5, *p)

	p, err = Priority("").Netlink()
	require.NoError(t, err)
	assert.Equal(t, nftables.ChainPriority(0), *p)

	assert.Equal(t, nftables.ChainPolicyDrop, *PolicyDrop.Netlink())
	assert.Equal(t, nftables.ChainPolicyAccept, *Policy("").Netlink())
}

func testBaseChain(spec BaseChainSpec) *BaseChain {
	t := &Table{name: "filter", family: FamilyINet}
	return &BaseChain{Chain: &Chain{table: t, name: "input"}, spec: spec}
}

func TestBaseChain_VerifyWith(t *testing.T) {
	spec := BaseChainSpec{Type: TypeFilter, Hook: HookInput, Priority: "filter", Policy: PolicyDrop}
	drop := nftables.ChainPolicyDrop
	table := &nftables.Table{Name: "filter", Family: nftables.TableFamilyINet}

	good := &nftables.Chain{
		Name:     "input",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &drop,
	}

	m := &mockLister{}
	m.On("ListChainsOfTableFamily", nftables.TableFamilyINet).Return([]*nftables.Chain{good}, nil)
	assert.NoError(t, testBaseChain(spec).verifyWith(m))
	m.AssertExpectations(t)

	wrongHook := *good
	wrongHook.Hooknum = nftables.ChainHookOutput
	m = &mockLister{}
	m.On("ListChainsOfTableFamily", nftables.TableFamilyINet).Return([]*nftables.Chain{&wrongHook}, nil)
	assert.ErrorContains(t, testBaseChain(spec).verifyWith(m), "not attached to hook input")

	wrongPriority := *good
	wrongPriority.Priority = nftables.ChainPriorityMangle
	m = &mockLister{}
	m.On("ListChainsOfTableFamily", nftables.TableFamilyINet).Return([]*nftables.Chain{&wrongPriority}, nil)
	assert.ErrorContains(t, testBaseChain(spec).verifyWith(m), "priority")

	m = &mockLister{}
	m.On("ListChainsOfTableFamily", nftables.TableFamilyINet).Return([]*nftables.Chain{}, nil)
	assert.ErrorContains(t, testBaseChain(spec).verifyWith(m), "not found over netlink")

	m = &mockLister{}
	m.On("ListChainsOfTableFamily", nftables.TableFamilyINet).Return(nil, errors.New("permission denied"))
	assert.ErrorContains(t, testBaseChain(spec).verifyWith(m), "permission denied")
}
