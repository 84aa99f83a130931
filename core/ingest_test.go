package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestIngestor(t *testing.T, db *gorm.DB, chain *stubChain) *Ingestor {
	t.Helper()
	log := quietLogger()
	handler := NewEventHandler(db, chain, nil, nil, log)
	retrier := &Retrier{Delays: nil, Alerts: log}
	return NewIngestor(db, chain, handler, retrier, log, log, 0)
}

func envelope(number int64, hash string) *BlockEnvelope {
	return &BlockEnvelope{
		Number:     number,
		Hash:       hash,
		ParentHash: "parent of " + hash,
		Extrinsics: ExtrinsicMap{},
		Events:     EventMap{},
	}
}

func TestSyncInitialAccounts(t *testing.T) {
	db := newTestDB(t)
	chain := &stubChain{accounts: []string{"acc1", "acc2", "acc1"}}
	ingestor := newTestIngestor(t, db, chain)

	require.NoError(t, ingestor.SyncInitialAccounts(context.Background()))

	var count int64
	require.NoError(t, db.Model(&Account{}).Count(&count).Error)
	assert.EqualValues(t, 2, count, "duplicate chain entries collapse via insert-ignore")
}

func TestFetchAndParseBlockReturnsStoredRow(t *testing.T) {
	db := newTestDB(t)
	// an empty stub errors on any fetch, proving no chain round trip happens
	ingestor := newTestIngestor(t, db, &stubChain{})
	stored := NewBlockBuilder(4).Build()
	require.NoError(t, db.Create(stored).Error)

	number := int64(4)
	block, err := ingestor.FetchAndParseBlock(context.Background(), FetchOpts{Number: &number}, false)
	require.NoError(t, err)
	assert.Equal(t, stored.Hash, block.Hash)

	block, err = ingestor.FetchAndParseBlock(context.Background(), FetchOpts{Hash: stored.Hash}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 4, block.Number)
}

func TestFetchAndParseBlockRecreate(t *testing.T) {
	db := newTestDB(t)
	chain := &stubChain{byNumber: map[int64]*BlockEnvelope{4: envelope(4, "hash 4")}}
	ingestor := newTestIngestor(t, db, chain)
	stale := NewBlockBuilder(4).WithHash("stale hash").Build()
	require.NoError(t, db.Create(stale).Error)

	number := int64(4)
	block, err := ingestor.FetchAndParseBlock(context.Background(), FetchOpts{Number: &number}, true)
	require.NoError(t, err)
	assert.Equal(t, "hash 4", block.Hash)

	var count int64
	require.NoError(t, db.Model(&Block{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFetchAndParseBlockNumberCollisionIsOutOfSync(t *testing.T) {
	db := newTestDB(t)
	chain := &stubChain{heads: []*BlockEnvelope{envelope(1, "divergent hash")}}
	ingestor := newTestIngestor(t, db, chain)
	require.NoError(t, db.Create(NewBlockBuilder(1).Build()).Error)

	_, err := ingestor.FetchAndParseBlock(context.Background(), FetchOpts{}, false)
	require.ErrorIs(t, err, ErrOutOfSync)
}

func TestFetchAndParseBlockEmptyResponse(t *testing.T) {
	db := newTestDB(t)
	ingestor := newTestIngestor(t, db, &stubChain{})

	_, err := ingestor.FetchAndParseBlock(context.Background(), FetchOpts{}, false)
	require.ErrorIs(t, err, ErrEmptyRPCResponse)
}

func TestListenCatchesUpFromGap(t *testing.T) {
	db := newTestDB(t)
	chain := &stubChain{
		heads: []*BlockEnvelope{envelope(3, "hash 3")},
		byNumber: map[int64]*BlockEnvelope{
			1: envelope(1, "hash 1"),
			2: envelope(2, "hash 2"),
			3: envelope(3, "hash 3"),
		},
	}
	ingestor := newTestIngestor(t, db, chain)
	genesis := NewBlockBuilder(0).Build()
	genesis.Executed = true
	require.NoError(t, db.Create(genesis).Error)

	err := ingestor.Listen(context.Background())
	require.ErrorIs(t, err, ErrEmptyRPCResponse, "the drained stub ends the loop")

	latest, lerr := NewBlockStore(db).LatestExecuted()
	require.NoError(t, lerr)
	require.NotNil(t, latest)
	assert.EqualValues(t, 3, latest.Number)

	var unexecuted int64
	require.NoError(t, db.Model(&Block{}).Where("executed = ?", false).Count(&unexecuted).Error)
	assert.Zero(t, unexecuted, "no earlier block may stay unexecuted")
}

func TestListenResyncsWhenChainIsBehind(t *testing.T) {
	db := newTestDB(t)
	chain := &stubChain{
		heads:    []*BlockEnvelope{envelope(3, "hash 3")},
		accounts: []string{"acc1"},
	}
	ingestor := newTestIngestor(t, db, chain)
	mustCreate(t, db, []Account{{Address: "stale"}})
	mustCreate(t, db, []Dao{{ID: "dao1", CreatorID: "stale", OwnerID: "stale"}})
	ahead := NewBlockBuilder(5).Build()
	ahead.Executed = true
	require.NoError(t, db.Create(ahead).Error)

	err := ingestor.Listen(context.Background())
	require.ErrorIs(t, err, ErrEmptyRPCResponse)

	var blocks, daos int64
	require.NoError(t, db.Model(&Block{}).Count(&blocks).Error)
	require.NoError(t, db.Model(&Dao{}).Count(&daos).Error)
	assert.Zero(t, blocks, "resync truncates the block table")
	assert.Zero(t, daos, "resync truncates the projection")

	var accounts []Account
	require.NoError(t, db.Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc1", accounts[0].Address, "accounts are reseeded from the chain")
}

func TestListenReExecutesUnexecutedLastBlock(t *testing.T) {
	db := newTestDB(t)
	ingestor := newTestIngestor(t, db, &stubChain{})
	pending := NewBlockBuilder(1).
		WithEvent("System", "NewAccount", map[string]any{"account": "acc1"}).
		Build()
	require.NoError(t, db.Create(pending).Error)

	err := ingestor.Listen(context.Background())
	require.ErrorIs(t, err, ErrEmptyRPCResponse)

	var account Account
	require.NoError(t, db.First(&account, "address = ?", "acc1").Error)
	var stored Block
	require.NoError(t, db.First(&stored, "hash = ?", pending.Hash).Error)
	assert.True(t, stored.Executed)
}

func TestListenRaisesWhenLastBlockNotExecutable(t *testing.T) {
	db := newTestDB(t)
	ingestor := newTestIngestor(t, db, &stubChain{})
	broken := NewBlockBuilder(1).
		WithEvent("Assets", "Transferred", map[string]any{"asset_id": 1, "amount": 10, "from": "ghost", "to": "acc1"}).
		Build()
	require.NoError(t, db.Create(broken).Error)

	err := ingestor.Listen(context.Background())
	require.ErrorIs(t, err, ErrNotExecutable)
}

func TestClearDB(t *testing.T) {
	db := newTestDB(t)
	chain := &stubChain{accounts: []string{"acc1"}}
	ingestor := newTestIngestor(t, db, chain)
	mustCreate(t, db, []Account{{Address: "acc1"}})
	mustCreate(t, db, []Dao{{ID: "dao1", CreatorID: "acc1", OwnerID: "acc1"}})
	mustCreate(t, db, []Asset{{ID: 1, DaoID: "dao1", OwnerID: "acc1", TotalSupply: 100}})
	mustCreate(t, db, []AssetHolding{{AssetID: 1, OwnerID: "acc1", Balance: 100}})
	mustCreate(t, db, []Governance{{DaoID: "dao1", ProposalDuration: 1, ProposalTokenDeposit: 2, MinimumMajority: 3, Type: GovernanceTypeMajorityVote}})
	mustCreate(t, db, []Proposal{{ID: "prop1", DaoID: "dao1", CreatorID: "acc1", BirthBlockNumber: 10, Status: ProposalStatusRunning}})

	require.NoError(t, ingestor.ClearDB(context.Background(), time.Time{}))

	for _, model := range []any{&Dao{}, &Asset{}, &AssetHolding{}, &Governance{}, &Proposal{}, &Block{}} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Zerof(t, count, "%T should be empty", model)
	}
	var accounts []Account
	require.NoError(t, db.Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc1", accounts[0].Address)
}
