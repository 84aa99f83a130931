package core

// Sample block builders — convenience helpers for tests and local
// experiments against a devnet.

import "fmt"

// BlockBuilder assembles Block rows event by event.
type BlockBuilder struct {
	block *Block
}

// NewBlockBuilder starts a builder for a block with the given number. The
// hash and parent hash are derived from the number unless overridden.
func NewBlockBuilder(number int64) *BlockBuilder {
	parent := fmt.Sprintf("hash %d", number-1)
	return &BlockBuilder{block: &Block{
		Number:        number,
		Hash:          fmt.Sprintf("hash %d", number),
		ParentHash:    &parent,
		ExtrinsicData: ExtrinsicMap{},
		EventData:     EventMap{},
	}}
}

// WithHash overrides the derived block hash.
func (b *BlockBuilder) WithHash(hash string) *BlockBuilder {
	b.block.Hash = hash
	return b
}

// WithEvent appends an event's attribute map under module/name.
func (b *BlockBuilder) WithEvent(module, name string, attrs map[string]any) *BlockBuilder {
	if b.block.EventData[module] == nil {
		b.block.EventData[module] = map[string][]map[string]any{}
	}
	b.block.EventData[module][name] = append(b.block.EventData[module][name], attrs)
	return b
}

// WithExtrinsic appends an extrinsic's argument map under module/function.
func (b *BlockBuilder) WithExtrinsic(module, function string, args map[string]any) *BlockBuilder {
	if b.block.ExtrinsicData[module] == nil {
		b.block.ExtrinsicData[module] = map[string][]map[string]any{}
	}
	b.block.ExtrinsicData[module][function] = append(b.block.ExtrinsicData[module][function], args)
	return b
}

// Build returns the assembled block.
func (b *BlockBuilder) Build() *Block {
	return b.block
}
