package core

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// BlockStore persists raw block envelopes. Hash is the primary key and number
// carries a unique constraint; a number collision with a different hash is the
// signal for unrecoverable divergence.
type BlockStore struct {
	db *gorm.DB
}

// NewBlockStore wires a BlockStore over the given database handle.
func NewBlockStore(db *gorm.DB) *BlockStore {
	return &BlockStore{db: db}
}

// GetByHash returns the block with the given hash, or nil when absent.
func (s *BlockStore) GetByHash(hash string) (*Block, error) {
	var block Block
	err := s.db.Where("hash = ?", hash).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// GetByNumber returns the block with the given number, or nil when absent.
func (s *BlockStore) GetByNumber(number int64) (*Block, error) {
	var block Block
	err := s.db.Where("number = ?", number).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// Latest returns the block with the highest number regardless of execution
// state, or nil for an empty store.
func (s *BlockStore) Latest() (*Block, error) {
	var block Block
	err := s.db.Order("number DESC").First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// LatestExecuted returns the highest numbered executed block, or nil when no
// block has been executed yet.
func (s *BlockStore) LatestExecuted() (*Block, error) {
	var block Block
	err := s.db.Where("executed = ?", true).Order("number DESC").First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// Exists reports whether a block with the given hash or number is stored.
func (s *BlockStore) Exists(hash string, number *int64) (bool, error) {
	query := s.db.Model(&Block{})
	switch {
	case hash != "":
		query = query.Where("hash = ?", hash)
	case number != nil:
		query = query.Where("number = ?", *number)
	default:
		return false, nil
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a block envelope. A unique violation on number while the
// hash differs means the local chain history diverged from the node's;
// ErrOutOfSync is returned in that case.
func (s *BlockStore) Create(block *Block) error {
	if err := s.db.Create(block).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrOutOfSync
		}
		return err
	}
	return nil
}

// Replace deletes any stored block with the same hash or number and inserts
// the given envelope.
func (s *BlockStore) Replace(block *Block) error {
	if err := s.db.Where("hash = ? OR number = ?", block.Hash, block.Number).Delete(&Block{}).Error; err != nil {
		return err
	}
	return s.Create(block)
}

// MarkExecuted flips the executed flag. It is a no-op on already executed
// rows, which keeps block application idempotent under crash/retry.
func (s *BlockStore) MarkExecuted(db *gorm.DB, block *Block) error {
	if err := db.Model(&Block{}).Where("hash = ?", block.Hash).Update("executed", true).Error; err != nil {
		return err
	}
	block.Executed = true
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// the sqlite and postgres drivers do not always translate constraint
	// errors through gorm's taxonomy
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
