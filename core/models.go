package core

import (
	"time"
)

// ProposalStatus is the closed set of lifecycle states for a Proposal.
type ProposalStatus string

const (
	ProposalStatusRunning  ProposalStatus = "RUNNING"
	ProposalStatusPending  ProposalStatus = "PENDING"
	ProposalStatusRejected ProposalStatus = "REJECTED"
	ProposalStatusFaulted  ProposalStatus = "FAULTED"
)

// Valid reports whether s is a member of the closed set.
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusRunning, ProposalStatusPending, ProposalStatusRejected, ProposalStatusFaulted:
		return true
	}
	return false
}

// TransactionStatus is the closed set of lifecycle states for a
// MultiSigTransaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusApproved  TransactionStatus = "APPROVED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
	TransactionStatusExecuted  TransactionStatus = "EXECUTED"
)

// Valid reports whether s is a member of the closed set.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusApproved, TransactionStatusCancelled, TransactionStatusExecuted:
		return true
	}
	return false
}

// GovernanceType is the closed set of governance models a Dao can use.
type GovernanceType string

// GovernanceTypeMajorityVote is currently the only supported governance type.
const GovernanceTypeMajorityVote GovernanceType = "MAJORITY_VOTE"

// Valid reports whether t is a member of the closed set.
func (t GovernanceType) Valid() bool {
	return t == GovernanceTypeMajorityVote
}

// ExtrinsicMap groups a block's extrinsics as module -> function -> argument
// maps, in submission order.
type ExtrinsicMap map[string]map[string][]map[string]any

// EventMap groups a block's events as module -> event name -> attribute maps,
// in emission order.
type EventMap map[string]map[string][]map[string]any

// Account is a principal identified by an opaque chain address.
type Account struct {
	Address   string `gorm:"primaryKey;size:128" json:"address"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dao is the projection of an on-chain DAO.
type Dao struct {
	ID            string `gorm:"primaryKey;size:128" json:"id"`
	Name          string `gorm:"size:128" json:"name"`
	CreatorID     string `gorm:"size:128;index" json:"creator_id"`
	OwnerID       string `gorm:"size:128;index" json:"owner_id"`
	MetadataURL   *string        `json:"metadata_url"`
	MetadataHash  *string        `json:"metadata_hash"`
	Metadata      map[string]any `gorm:"serializer:json" json:"metadata"`
	SetupComplete bool           `json:"setup_complete"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Asset is the token issued for a Dao. At most one Asset exists per Dao.
type Asset struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TotalSupply int64  `json:"total_supply"`
	DaoID       string `gorm:"size:128;uniqueIndex" json:"dao_id"`
	OwnerID     string `gorm:"size:128;index" json:"owner_id"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AssetHolding tracks how much of an Asset an Account holds and to whom the
// holding's voting power is delegated.
type AssetHolding struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	AssetID       int64   `gorm:"uniqueIndex:idx_asset_owner" json:"asset_id"`
	OwnerID       string  `gorm:"size:128;uniqueIndex:idx_asset_owner" json:"owner_id"`
	Balance       int64   `json:"balance"`
	DelegatedToID *string `gorm:"size:128" json:"delegated_to_id"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Governance is the one-per-Dao voting configuration. Minimum majority is
// expressed per 1024 of the token supply.
type Governance struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	DaoID                string         `gorm:"size:128;index" json:"dao_id"`
	ProposalDuration     int64          `json:"proposal_duration"`
	ProposalTokenDeposit int64          `json:"proposal_token_deposit"`
	MinimumMajority      int64          `json:"minimum_majority"`
	Type                 GovernanceType `gorm:"size:32" json:"type"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Proposal is the projection of an on-chain governance proposal.
type Proposal struct {
	ID               string `gorm:"primaryKey;size:128" json:"id"`
	DaoID            string `gorm:"size:128;index" json:"dao_id"`
	CreatorID        string `gorm:"size:128" json:"creator_id"`
	BirthBlockNumber int64  `json:"birth_block_number"`
	MetadataURL      *string        `json:"metadata_url"`
	MetadataHash     *string        `json:"metadata_hash"`
	Metadata         map[string]any `gorm:"serializer:json" json:"metadata"`
	Title            *string        `gorm:"size:256" json:"title"`
	Status           ProposalStatus `gorm:"size:16;default:RUNNING" json:"status"`
	Fault            *string        `json:"fault"`
	SetupComplete    bool           `json:"setup_complete"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Vote is one Account's voting slot on a Proposal. InFavor is nil until the
// vote is cast; VotingPower snapshots the voter's effective balance at
// proposal creation.
type Vote struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProposalID  string `gorm:"size:128;uniqueIndex:idx_proposal_voter" json:"proposal_id"`
	VoterID     string `gorm:"size:128;uniqueIndex:idx_proposal_voter" json:"voter_id"`
	InFavor     *bool  `json:"in_favor"`
	VotingPower int64  `json:"voting_power"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MultiSig is a multi signature Account. It is linked to a Dao once the Dao
// is owned by the multisig address.
type MultiSig struct {
	Address     string   `gorm:"primaryKey;size:128" json:"address"`
	DaoID       *string  `gorm:"size:128" json:"dao_id"`
	Signatories []string `gorm:"serializer:json" json:"signatories"`
	Threshold   int      `json:"threshold"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MultiSigTransaction tracks an as_multi call through its approval lifecycle.
// Only the most recent non executed row per (multisig, call hash) is a
// mutation target.
type MultiSigTransaction struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	MultisigAddress string         `gorm:"size:128;index" json:"multisig_address"`
	CallHash        string         `gorm:"size:256;index" json:"call_hash"`
	Call            map[string]any `gorm:"serializer:json" json:"call"`
	CallFunction    *string        `gorm:"size:128" json:"call_function"`
	Timepoint       map[string]any `gorm:"serializer:json" json:"timepoint"`
	Approvers       []string       `gorm:"serializer:json" json:"approvers"`
	CanceledBy      *string        `gorm:"size:128" json:"canceled_by"`
	Status          TransactionStatus `gorm:"size:16;default:PENDING" json:"status"`
	ExecutedAt      *time.Time        `json:"executed_at"`
	AssetID         *int64            `json:"asset_id"`
	DaoID           *string           `gorm:"size:128" json:"dao_id"`
	ProposalID      *string           `gorm:"size:128" json:"proposal_id"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Block is the persisted envelope of one chain block.
type Block struct {
	Hash          string       `gorm:"primaryKey;size:128" json:"hash"`
	Number        int64        `gorm:"uniqueIndex" json:"number"`
	ParentHash    *string      `gorm:"size:128" json:"parent_hash"`
	ExtrinsicData ExtrinsicMap `gorm:"serializer:json" json:"extrinsic_data"`
	EventData     EventMap     `gorm:"serializer:json" json:"event_data"`
	Executed      bool         `gorm:"index" json:"executed"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Events returns the block's events for the given module and event name.
func (b *Block) Events(module, name string) []map[string]any {
	return b.EventData[module][name]
}

// Extrinsics returns the block's extrinsics for the given module and call
// function.
func (b *Block) Extrinsics(module, function string) []map[string]any {
	return b.ExtrinsicData[module][function]
}

// Challenge is the process wide signing challenge rotated by the challenge
// refresh daemon.
type Challenge struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"size:256"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// allModels lists every persisted entity in migration order.
func allModels() []any {
	return []any{
		&Account{}, &Dao{}, &Asset{}, &AssetHolding{}, &Governance{},
		&Proposal{}, &Vote{}, &MultiSig{}, &MultiSigTransaction{},
		&Block{}, &Challenge{},
	}
}
