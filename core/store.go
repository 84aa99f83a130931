package core

// Projection store — bulk read/mutate operations over the materialized
// entities. Handlers read all rows they need in one round trip, mutate in
// memory, then write back in one round trip.

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HoldingKey identifies one AssetHolding by its composite unique pair.
type HoldingKey struct {
	AssetID int64
	OwnerID string
}

// TransactionKey identifies the pending MultiSigTransaction mutation target.
type TransactionKey struct {
	CallHash string
	Multisig string
}

// Store exposes the projection mutations used by the event handler pipeline
// and the read API. All methods operate on the handle they were constructed
// with, so binding a Store to a transaction scopes every call to it.
type Store struct {
	db *gorm.DB
}

// NewStore wires a Store over the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to the given transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// DB exposes the underlying handle for callers composing their own queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateAccounts inserts an Account per address, ignoring conflicts.
func (s *Store) CreateAccounts(addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	accounts := make([]Account, 0, len(addresses))
	for _, address := range addresses {
		accounts = append(accounts, Account{Address: address})
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&accounts).Error
}

// CreateDaos inserts the given Daos.
func (s *Store) CreateDaos(daos []*Dao) error {
	if len(daos) == 0 {
		return nil
	}
	return s.db.Create(&daos).Error
}

// DaosByIDs loads the Daos with the given ids.
func (s *Store) DaosByIDs(ids []string) ([]*Dao, error) {
	var daos []*Dao
	if len(ids) == 0 {
		return daos, nil
	}
	err := s.db.Where("id IN ?", ids).Find(&daos).Error
	return daos, err
}

// SaveDaos writes back previously loaded Daos in one statement.
func (s *Store) SaveDaos(daos []*Dao) error {
	if len(daos) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&daos).Error
}

// DeleteDaos removes the given Daos together with their dependent
// projections: votes, proposals, governances, holdings and assets. MultiSig
// rows linked to the Daos are kept with their dao link cleared.
func (s *Store) DeleteDaos(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	proposalIDs := s.db.Model(&Proposal{}).Select("id").Where("dao_id IN ?", ids)
	if err := s.db.Where("proposal_id IN (?)", proposalIDs).Delete(&Vote{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("dao_id IN ?", ids).Delete(&Proposal{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("dao_id IN ?", ids).Delete(&Governance{}).Error; err != nil {
		return err
	}
	assetIDs := s.db.Model(&Asset{}).Select("id").Where("dao_id IN ?", ids)
	if err := s.db.Where("asset_id IN (?)", assetIDs).Delete(&AssetHolding{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("dao_id IN ?", ids).Delete(&Asset{}).Error; err != nil {
		return err
	}
	if err := s.db.Model(&MultiSig{}).Where("dao_id IN ?", ids).Update("dao_id", nil).Error; err != nil {
		return err
	}
	return s.db.Where("id IN ?", ids).Delete(&Dao{}).Error
}

// CreateAssets inserts the given Assets.
func (s *Store) CreateAssets(assets []*Asset) error {
	if len(assets) == 0 {
		return nil
	}
	return s.db.Create(&assets).Error
}

// CreateHoldings inserts the given AssetHoldings.
func (s *Store) CreateHoldings(holdings []*AssetHolding) error {
	if len(holdings) == 0 {
		return nil
	}
	return s.db.Create(&holdings).Error
}

// HoldingsByKeys loads the AssetHoldings matching any of the given
// (asset, owner) pairs in a single round trip.
func (s *Store) HoldingsByKeys(keys []HoldingKey) ([]*AssetHolding, error) {
	var holdings []*AssetHolding
	if len(keys) == 0 {
		return holdings, nil
	}
	query := s.db
	for i, key := range keys {
		cond := s.db.Session(&gorm.Session{NewDB: true}).
			Where("asset_id = ? AND owner_id = ?", key.AssetID, key.OwnerID)
		if i == 0 {
			query = query.Where(cond)
		} else {
			query = query.Or(cond)
		}
	}
	err := query.Find(&holdings).Error
	return holdings, err
}

// SaveHoldings writes back previously loaded AssetHoldings in one statement.
func (s *Store) SaveHoldings(holdings []*AssetHolding) error {
	if len(holdings) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&holdings).Error
}

// RevokeDelegations clears delegated_to on holdings matching the given
// (asset, owner, delegated_to) triples.
func (s *Store) RevokeDelegations(triples [][3]any) error {
	if len(triples) == 0 {
		return nil
	}
	query := s.db.Model(&AssetHolding{})
	for i, t := range triples {
		cond := s.db.Session(&gorm.Session{NewDB: true}).
			Where("asset_id = ? AND owner_id = ? AND delegated_to_id = ?", t[0], t[1], t[2])
		if i == 0 {
			query = query.Where(cond)
		} else {
			query = query.Or(cond)
		}
	}
	return query.Update("delegated_to_id", nil).Error
}

// ReplaceGovernances deletes any existing Governance for the given daos and
// inserts the replacements.
func (s *Store) ReplaceGovernances(daoIDs []string, governances []*Governance) error {
	if len(governances) == 0 {
		return nil
	}
	if err := s.db.Where("dao_id IN ?", daoIDs).Delete(&Governance{}).Error; err != nil {
		return err
	}
	return s.db.Create(&governances).Error
}

// CreateProposals inserts the given Proposals.
func (s *Store) CreateProposals(proposals []*Proposal) error {
	if len(proposals) == 0 {
		return nil
	}
	return s.db.Create(&proposals).Error
}

// ProposalsByIDs loads the Proposals with the given ids.
func (s *Store) ProposalsByIDs(ids []string) ([]*Proposal, error) {
	var proposals []*Proposal
	if len(ids) == 0 {
		return proposals, nil
	}
	err := s.db.Where("id IN ?", ids).Find(&proposals).Error
	return proposals, err
}

// SaveProposals writes back previously loaded Proposals in one statement.
func (s *Store) SaveProposals(proposals []*Proposal) error {
	if len(proposals) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&proposals).Error
}

// SetProposalStatus updates the status of all proposals with the given ids.
func (s *Store) SetProposalStatus(ids []string, status ProposalStatus) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Model(&Proposal{}).Where("id IN ?", ids).Update("status", status).Error
}

// VoterBalance is one AssetHolding row joined with its asset's dao, used to
// snapshot voting power at proposal creation.
type VoterBalance struct {
	DaoID         string
	OwnerID       string
	DelegatedToID *string
	Balance       int64
}

// VoterBalancesByDaos loads all holdings of the given daos' assets together
// with their delegation targets.
func (s *Store) VoterBalancesByDaos(daoIDs []string) ([]VoterBalance, error) {
	var balances []VoterBalance
	if len(daoIDs) == 0 {
		return balances, nil
	}
	err := s.db.Model(&AssetHolding{}).
		Select("assets.dao_id AS dao_id, asset_holdings.owner_id AS owner_id, asset_holdings.delegated_to_id AS delegated_to_id, asset_holdings.balance AS balance").
		Joins("JOIN assets ON assets.id = asset_holdings.asset_id").
		Where("assets.dao_id IN ?", daoIDs).
		Scan(&balances).Error
	return balances, err
}

// CreateVotes inserts the given Votes.
func (s *Store) CreateVotes(votes []*Vote) error {
	if len(votes) == 0 {
		return nil
	}
	return s.db.Create(&votes).Error
}

// VotesByProposalVoters loads the Votes matching any (proposal, voter) pair
// derived from the given map.
func (s *Store) VotesByProposalVoters(voting map[string]map[string]bool) ([]*Vote, error) {
	var votes []*Vote
	if len(voting) == 0 {
		return votes, nil
	}
	query := s.db
	first := true
	for proposalID, voters := range voting {
		voterIDs := make([]string, 0, len(voters))
		for voter := range voters {
			voterIDs = append(voterIDs, voter)
		}
		cond := s.db.Session(&gorm.Session{NewDB: true}).
			Where("proposal_id = ? AND voter_id IN ?", proposalID, voterIDs)
		if first {
			query = query.Where(cond)
			first = false
		} else {
			query = query.Or(cond)
		}
	}
	err := query.Find(&votes).Error
	return votes, err
}

// SaveVotes writes back previously loaded Votes in one statement.
func (s *Store) SaveVotes(votes []*Vote) error {
	if len(votes) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&votes).Error
}

// CreateMultiSigs inserts a MultiSig per address, ignoring conflicts.
func (s *Store) CreateMultiSigs(multisigs []*MultiSig) error {
	if len(multisigs) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&multisigs).Error
}

// MultiSigsByAddresses loads the MultiSigs with the given addresses.
func (s *Store) MultiSigsByAddresses(addresses []string) ([]*MultiSig, error) {
	var multisigs []*MultiSig
	if len(addresses) == 0 {
		return multisigs, nil
	}
	err := s.db.Where("address IN ?", addresses).Find(&multisigs).Error
	return multisigs, err
}

// SaveMultiSigs writes back previously loaded MultiSigs in one statement.
func (s *Store) SaveMultiSigs(multisigs []*MultiSig) error {
	if len(multisigs) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&multisigs).Error
}

// CreateMultiSigTransactions inserts the given transactions.
func (s *Store) CreateMultiSigTransactions(transactions []*MultiSigTransaction) error {
	if len(transactions) == 0 {
		return nil
	}
	return s.db.Create(&transactions).Error
}

// PendingTransactionsByKeys loads the non-executed MultiSigTransactions
// matching any of the given (call hash, multisig) pairs.
func (s *Store) PendingTransactionsByKeys(keys []TransactionKey) ([]*MultiSigTransaction, error) {
	var transactions []*MultiSigTransaction
	if len(keys) == 0 {
		return transactions, nil
	}
	pairs := s.db.Session(&gorm.Session{NewDB: true})
	for i, key := range keys {
		cond := s.db.Session(&gorm.Session{NewDB: true}).
			Where("call_hash = ? AND multisig_address = ?", key.CallHash, key.Multisig)
		if i == 0 {
			pairs = pairs.Where(cond)
		} else {
			pairs = pairs.Or(cond)
		}
	}
	err := s.db.Where("executed_at IS NULL").Where(pairs).Find(&transactions).Error
	return transactions, err
}

// SaveMultiSigTransactions writes back previously loaded transactions in one
// statement.
func (s *Store) SaveMultiSigTransactions(transactions []*MultiSigTransaction) error {
	if len(transactions) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&transactions).Error
}

// Truncate removes every projection row and every block envelope. Used by the
// full resync path.
func (s *Store) Truncate() error {
	for _, model := range []any{
		&Vote{}, &Proposal{}, &Governance{}, &AssetHolding{}, &Asset{},
		&MultiSigTransaction{}, &MultiSig{}, &Dao{}, &Account{}, &Block{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// Migrate creates or updates the schema for every persisted entity.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(allModels()...)
}
