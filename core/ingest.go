package core

// Ingestor loop — fetches blocks from the chain in strict increasing order,
// persists their envelopes, and drives the event handler pipeline. Handles
// catch-up over arbitrary backlog, transient faults through the retry
// controller, and unrecoverable divergence through a full resync.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Ingestor is the single logical block consumer.
type Ingestor struct {
	chain    Chain
	db       *gorm.DB
	blocks   *BlockStore
	store    *Store
	handler  *EventHandler
	retrier  *Retrier
	log      *logrus.Logger
	alerts   *logrus.Logger
	interval time.Duration
}

// NewIngestor wires the ingestor.
func NewIngestor(db *gorm.DB, chain Chain, handler *EventHandler, retrier *Retrier, log, alerts *logrus.Logger, interval time.Duration) *Ingestor {
	return &Ingestor{
		chain:    chain,
		db:       db,
		blocks:   NewBlockStore(db),
		store:    NewStore(db),
		handler:  handler,
		retrier:  retrier,
		log:      log,
		alerts:   alerts,
		interval: interval,
	}
}

// SyncInitialAccounts seeds the Account table from the chain's account map.
func (i *Ingestor) SyncInitialAccounts(ctx context.Context) error {
	var addresses []string
	err := i.retrier.Do(ctx, "fetching accounts from chain", FetchOpts{}, func() error {
		var err error
		addresses, err = i.chain.QueryAccounts(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return i.store.CreateAccounts(addresses)
}

// FetchAndParseBlock fetches the block selected by opts (the chain head when
// empty), persists its envelope, and returns the stored row. A row that
// already exists is returned as is unless recreate is set. A number
// collision with a different hash surfaces as ErrOutOfSync.
func (i *Ingestor) FetchAndParseBlock(ctx context.Context, opts FetchOpts, recreate bool) (*Block, error) {
	existing, err := i.lookupStored(opts)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !recreate {
			return existing, nil
		}
		if err := i.db.Where("hash = ?", existing.Hash).Delete(&Block{}).Error; err != nil {
			return nil, err
		}
	}

	var envelope *BlockEnvelope
	err = i.retrier.Do(ctx, "fetching block from chain", opts, func() error {
		var err error
		envelope, err = i.chain.FetchBlock(ctx, opts)
		if errors.Is(err, ErrEmptyRPCResponse) {
			// no data is a hard error, not a transport fault
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, ErrEmptyRPCResponse
	}

	block := &Block{
		Hash:          envelope.Hash,
		Number:        envelope.Number,
		ParentHash:    &envelope.ParentHash,
		ExtrinsicData: envelope.Extrinsics,
		EventData:     envelope.Events,
	}
	// the head may already be stored from a previous tick
	if stored, err := i.blocks.GetByHash(block.Hash); err != nil {
		return nil, err
	} else if stored != nil {
		return stored, nil
	}
	if err := i.blocks.Create(block); err != nil {
		if errors.Is(err, ErrOutOfSync) {
			i.alerts.Error("DB and chain are unrecoverably out of sync!")
		}
		return nil, err
	}
	return block, nil
}

func (i *Ingestor) lookupStored(opts FetchOpts) (*Block, error) {
	if opts.Hash != "" {
		return i.blocks.GetByHash(opts.Hash)
	}
	if opts.Number != nil {
		return i.blocks.GetByNumber(*opts.Number)
	}
	return nil, nil
}

// Listen fetches and executes blocks from the chain in an endless loop until
// the context is cancelled.
func (i *Ingestor) Listen(ctx context.Context) error {
	last, err := i.blocks.Latest()
	if err != nil {
		return err
	}
	// an unprocessed block from a previous run is re-executed before syncing
	if last != nil && !last.Executed {
		if err := i.handler.ExecuteActions(last); err != nil {
			i.alerts.WithError(err).Errorf("Block not executable! number: %d | hash: %s", last.Number, last.Hash)
			return fmt.Errorf("%w: number %d hash %s", ErrNotExecutable, last.Number, last.Hash)
		}
	}
	if last == nil {
		last = &Block{Number: -1}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		start := time.Now()

		current, err := i.FetchAndParseBlock(ctx, FetchOpts{}, false)
		if err != nil {
			if errors.Is(err, ErrOutOfSync) {
				if err := i.ClearDB(ctx, start); err != nil {
					return err
				}
				last = &Block{Number: -1}
				continue
			}
			return err
		}

		switch {
		case last.Number > current.Number:
			// unrecoverable, short of a complete resync
			i.alerts.Error("DB and chain are unrecoverably out of sync!")
			if err := i.ClearDB(ctx, start); err != nil {
				return err
			}
			last = &Block{Number: -1}
			continue
		case last.Number == current.Number:
			// we already processed this block; shouldn't normally happen
			// due to the block creation interval sleep
			i.log.Infof("Waiting for new block | number: %d | hash: %s", current.Number, current.Hash)
		case last.Number+1 == current.Number:
			i.log.Infof("Processing latest block | number: %d | hash: %s", current.Number, current.Hash)
			if err := i.execute(current); err != nil {
				i.sleep(ctx, start)
				continue
			}
			last = current
		default:
			// the db is behind the chain; fetch and execute until caught up
			for current.Number > last.Number {
				number := last.Number + 1
				i.log.Infof("Catching up | number: %d", number)
				next, err := i.FetchAndParseBlock(ctx, FetchOpts{Number: &number}, false)
				if err != nil {
					if errors.Is(err, ErrOutOfSync) {
						if err := i.ClearDB(ctx, start); err != nil {
							return err
						}
						last = &Block{Number: -1}
						break
					}
					return err
				}
				if err := i.execute(next); err != nil {
					break
				}
				last = next
			}
		}

		i.sleep(ctx, start)
	}
}

// execute runs the pipeline on a block. Pipeline failures are logged and the
// block left un-executed so the next tick retries it.
func (i *Ingestor) execute(block *Block) error {
	if err := i.handler.ExecuteActions(block); err != nil {
		var parseErr *ParseBlockError
		if errors.As(err, &parseErr) {
			i.log.WithError(err).Errorf("Block #%d failed to execute, retrying next tick", block.Number)
			return err
		}
		return err
	}
	return nil
}

// ClearDB performs a full resync: the projection and block tables are
// truncated, accounts are reseeded from the chain, and the loop sleeps one
// block interval to avoid hot looping against a broken node.
func (i *Ingestor) ClearDB(ctx context.Context, start time.Time) error {
	i.alerts.Info("DB and chain are out of sync! Recreating DB...")
	if err := i.store.Truncate(); err != nil {
		return err
	}
	if err := i.SyncInitialAccounts(ctx); err != nil {
		return err
	}
	if !start.IsZero() {
		i.sleep(ctx, start)
	}
	return nil
}

// sleep ensures a full tick takes at least one block creation interval.
func (i *Ingestor) sleep(ctx context.Context, start time.Time) {
	elapsed := time.Since(start)
	if elapsed >= i.interval {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(i.interval - elapsed):
	}
}
