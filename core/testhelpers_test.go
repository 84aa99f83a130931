package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database migrated to the current
// schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(allModels()...))
	return db
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// stubChain is a scripted Chain implementation.
type stubChain struct {
	mu        sync.Mutex
	heads     []*BlockEnvelope
	byNumber  map[int64]*BlockEnvelope
	accounts  []string
	headCalls int
	onDrained func()
}

func (c *stubChain) FetchBlock(_ context.Context, opts FetchOpts) (*BlockEnvelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if opts.Number != nil {
		envelope, ok := c.byNumber[*opts.Number]
		if !ok {
			return nil, ErrEmptyRPCResponse
		}
		return envelope, nil
	}
	if opts.Hash != "" {
		for _, envelope := range c.byNumber {
			if envelope.Hash == opts.Hash {
				return envelope, nil
			}
		}
		return nil, ErrEmptyRPCResponse
	}
	if len(c.heads) == 0 {
		if c.onDrained != nil {
			c.onDrained()
		}
		return nil, ErrEmptyRPCResponse
	}
	head := c.heads[0]
	if len(c.heads) > 1 {
		c.heads = c.heads[1:]
	} else {
		c.heads = nil
	}
	c.headCalls++
	return head, nil
}

func (c *stubChain) QueryAccounts(_ context.Context) ([]string, error) {
	return c.accounts, nil
}

func (c *stubChain) CreateMultisigCallHash(module, function string, args map[string]any) string {
	return MultisigCallHash(module, function, args)
}

func (c *stubChain) Close() error { return nil }

// recordingBroadcaster captures published current blocks.
type recordingBroadcaster struct {
	mu     sync.Mutex
	blocks []CurrentBlock
}

func (b *recordingBroadcaster) SetCurrentBlock(_ context.Context, number int64, hash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = append(b.blocks, CurrentBlock{Number: number, Hash: hash})
	return nil
}

func (b *recordingBroadcaster) last() *CurrentBlock {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.blocks) == 0 {
		return nil
	}
	last := b.blocks[len(b.blocks)-1]
	return &last
}

// recordingTasks captures scheduled metadata refreshes.
type recordingTasks struct {
	daoMetadata map[string]MetadataPair
	proposalIDs []string
}

func (r *recordingTasks) UpdateDaoMetadata(daoMetadata map[string]MetadataPair) {
	if r.daoMetadata == nil {
		r.daoMetadata = map[string]MetadataPair{}
	}
	for id, pair := range daoMetadata {
		r.daoMetadata[id] = pair
	}
}

func (r *recordingTasks) UpdateProposalMetadata(proposalIDs []string) {
	r.proposalIDs = append(r.proposalIDs, proposalIDs...)
}

// newTestHandler wires an EventHandler over the test database with scripted
// collaborators.
func newTestHandler(t *testing.T, db *gorm.DB) (*EventHandler, *recordingBroadcaster, *recordingTasks) {
	t.Helper()
	broadcaster := &recordingBroadcaster{}
	tasks := &recordingTasks{}
	handler := NewEventHandler(db, &stubChain{}, broadcaster, tasks, quietLogger())
	return handler, broadcaster, tasks
}

func mustCreate[T any](t *testing.T, db *gorm.DB, rows []T) {
	t.Helper()
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
}

func ptr[T any](v T) *T { return &v }
