package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addrContract struct {
	stubContract
	addr common.Address
}

func (c addrContract) Address() common.Address { return c.addr }

func newTestTx(id TransactionID, method string) *Transaction {
	return NewTransaction(id, &Intent{MethodName: method, Args: StaticArgs()}, nil)
}

func TestCollection_AddAndFilter(t *testing.T) {
	c := NewCollection()
	move1 := newTestTx(1, "move")
	upgrade := newTestTx(2, "upgradePlanet")
	move2 := newTestTx(3, "move")

	c.AddTransaction(move1)
	c.AddTransaction(upgrade)
	c.AddTransaction(move2)

	moves := c.GetTransactions(ByMethod("move"))
	require.Len(t, moves, 2)
	assert.Same(t, move1, moves[0])
	assert.Same(t, move2, moves[1])

	assert.True(t, c.HasTransaction(ByMethod("upgradePlanet")))
	assert.False(t, c.HasTransaction(ByMethod("prospectPlanet")))
	assert.Equal(t, 3, c.Len())
}

func TestCollection_RemoveByIdentity(t *testing.T) {
	c := NewCollection()
	a := newTestTx(1, "move")
	b := newTestTx(1, "move") // same id, different record

	c.AddTransaction(a)
	c.AddTransaction(b)
	c.RemoveTransaction(a)

	remaining := c.GetTransactions(func(*Transaction) bool { return true })
	require.Len(t, remaining, 1)
	assert.Same(t, b, remaining[0])
}

func TestCollection_RemoveMissingIsNoop(t *testing.T) {
	c := NewCollection()
	a := newTestTx(1, "move")
	c.AddTransaction(a)

	c.RemoveTransaction(newTestTx(2, "move"))

	assert.Equal(t, 1, c.Len())
}

func TestCollection_StatePredicates(t *testing.T) {
	c := NewCollection()
	pending := newTestTx(1, "move")
	done := newTestTx(2, "move")
	done.SetState(StateConfirm)
	failed := newTestTx(3, "upgradePlanet")
	failed.SetState(StateFail)

	c.AddTransaction(pending)
	c.AddTransaction(done)
	c.AddTransaction(failed)

	assert.Equal(t, []*Transaction{pending}, c.GetTransactions(Pending()))
	assert.Equal(t, []*Transaction{done, failed}, c.GetTransactions(ByState(StateConfirm, StateFail)))
	assert.True(t, c.HasTransaction(And(ByMethod("move"), Pending())))
	assert.False(t, c.HasTransaction(And(ByMethod("upgradePlanet"), Pending())))
}

func TestCollection_ByContract(t *testing.T) {
	core := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")

	c := NewCollection()
	tx := NewTransaction(1, &Intent{Contract: addrContract{addr: core}, MethodName: "move"}, nil)
	c.AddTransaction(tx)
	c.AddTransaction(newTestTx(2, "move"))

	assert.Equal(t, []*Transaction{tx}, c.GetTransactions(ByContract(core)))
	assert.Empty(t, c.GetTransactions(ByContract(other)))
}
