package core

// Event handler pipeline — applies one block's extrinsics and events to the
// projection by running a fixed ordered sequence of action stages inside a
// single database transaction. Ordering is load-bearing: later stages read
// rows created by earlier stages within the same block.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetadataPair is the (url, hash) announced for a Dao's metadata.
type MetadataPair struct {
	URL  string
	Hash string
}

// Broadcaster publishes the most recently executed block to downstream
// consumers.
type Broadcaster interface {
	SetCurrentBlock(ctx context.Context, number int64, hash string) error
}

// TaskQueue dispatches off-core asynchronous work. Implementations run the
// tasks outside the pipeline's transaction.
type TaskQueue interface {
	UpdateDaoMetadata(daoMetadata map[string]MetadataPair)
	UpdateProposalMetadata(proposalIDs []string)
}

type blockAction func(st *Store, block *Block) error

// EventHandler runs the action stages over persisted blocks.
type EventHandler struct {
	db          *gorm.DB
	blocks      *BlockStore
	store       *Store
	chain       Chain
	broadcaster Broadcaster
	tasks       TaskQueue
	alerts      *logrus.Logger
	actions     []blockAction
}

// NewEventHandler wires the pipeline. broadcaster and tasks may be nil; the
// corresponding steps are skipped.
func NewEventHandler(db *gorm.DB, chain Chain, broadcaster Broadcaster, tasks TaskQueue, alerts *logrus.Logger) *EventHandler {
	h := &EventHandler{
		db:          db,
		blocks:      NewBlockStore(db),
		store:       NewStore(db),
		chain:       chain,
		broadcaster: broadcaster,
		tasks:       tasks,
		alerts:      alerts,
	}
	h.actions = []blockAction{
		h.instantiateContracts,
		h.createAccounts,
		h.createDaos,
		h.transferDaoOwnerships,
		h.deleteDaos,
		h.createAssets,
		h.transferAssets,
		h.delegateAssets,
		h.revokeAssetDelegations,
		h.setDaoMetadata,
		h.daoSetGovernances,
		h.createProposals,
		h.setProposalMetadata,
		h.registerVotes,
		h.finalizeProposals,
		h.faultProposals,
		h.handleNewTransactions,
		h.approveTransactions,
		h.executeTransactions,
		h.cancelTransactions,
	}
	return h
}

// ExecuteActions alters the projection based on the block's extrinsics and
// events. All stages and the executed flag flip commit in one transaction;
// any failure rolls the whole block back and surfaces as a ParseBlockError.
// Already executed blocks are a no-op.
func (h *EventHandler) ExecuteActions(block *Block) error {
	if block.Executed {
		return nil
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		st := h.store.WithTx(tx)
		for _, action := range h.actions {
			if err := action(st, block); err != nil {
				if isIntegrityViolation(err) {
					h.alerts.WithError(err).Errorf("Database error while parsing Block #%d.", block.Number)
				} else {
					h.alerts.WithError(err).Errorf("Unexpected error while parsing Block #%d.", block.Number)
				}
				return &ParseBlockError{BlockNumber: block.Number, Err: err}
			}
		}
		return h.blocks.MarkExecuted(tx, block)
	})
	if err != nil {
		block.Executed = false
		return err
	}
	if h.broadcaster != nil {
		if err := h.broadcaster.SetCurrentBlock(context.Background(), block.Number, block.Hash); err != nil {
			h.alerts.WithError(err).Warn("failed to publish current block")
		}
	}
	return nil
}

// instantiateContracts observes ContractEmitted events. Currently a passive
// hook kept for forward compatibility.
func (h *EventHandler) instantiateContracts(_ *Store, block *Block) error {
	for _, event := range block.Events("Contracts", "ContractEmitted") {
		h.alerts.WithFields(logrus.Fields{
			"name": event["name"],
			"args": event["args"],
		}).Info("contract emitted")
	}
	return nil
}

// createAccounts creates Accounts based on the block's events.
func (h *EventHandler) createAccounts(st *Store, block *Block) error {
	var addresses []string
	for _, event := range block.Events("System", "NewAccount") {
		addresses = append(addresses, toString(event["account"]))
	}
	return st.CreateAccounts(addresses)
}

// createDaos creates Daos based on the block's extrinsics and events.
func (h *EventHandler) createDaos(st *Store, block *Block) error {
	var daos []*Dao
	for _, extrinsic := range block.Extrinsics("DaoCore", "create_dao") {
		for _, event := range block.Events("DaoCore", "DaoCreated") {
			if toString(extrinsic["dao_id"]) == toString(event["dao_id"]) {
				owner := toString(event["owner"])
				daos = append(daos, &Dao{
					ID:        toString(extrinsic["dao_id"]),
					Name:      toString(extrinsic["dao_name"]),
					CreatorID: owner,
					OwnerID:   owner,
				})
				break
			}
		}
	}
	return st.CreateDaos(daos)
}

// transferDaoOwnerships transfers ownership of Daos to new Accounts based on
// the block's events, then links any matching MultiSig rows to their Dao.
func (h *EventHandler) transferDaoOwnerships(st *Store, block *Block) error {
	daoToNewOwner := map[string]string{}
	var daoIDs []string
	for _, event := range block.Events("DaoCore", "DaoOwnerChanged") {
		daoID := toString(event["dao_id"])
		if _, seen := daoToNewOwner[daoID]; !seen {
			daoIDs = append(daoIDs, daoID)
		}
		daoToNewOwner[daoID] = toString(event["new_owner"])
	}
	if len(daoToNewOwner) == 0 {
		return nil
	}

	daos, err := st.DaosByIDs(daoIDs)
	if err != nil {
		return err
	}
	for _, dao := range daos {
		dao.OwnerID = daoToNewOwner[dao.ID]
		dao.SetupComplete = true
	}
	if len(daos) == 0 {
		return nil
	}

	// new owners may be multi signature wallets; their Accounts do not
	// necessarily exist yet
	ownerToDao := map[string]string{}
	owners := make([]string, 0, len(daoToNewOwner))
	for daoID, owner := range daoToNewOwner {
		owners = append(owners, owner)
		ownerToDao[owner] = daoID
	}
	if err := st.CreateAccounts(owners); err != nil {
		return err
	}
	if err := st.SaveDaos(daos); err != nil {
		return err
	}
	multisigs, err := st.MultiSigsByAddresses(owners)
	if err != nil {
		return err
	}
	for _, multisig := range multisigs {
		daoID := ownerToDao[multisig.Address]
		multisig.DaoID = &daoID
	}
	return st.SaveMultiSigs(multisigs)
}

// deleteDaos removes Daos based on the block's events, cascading to their
// dependent projections.
func (h *EventHandler) deleteDaos(st *Store, block *Block) error {
	var daoIDs []string
	for _, event := range block.Events("DaoCore", "DaoDestroyed") {
		daoIDs = append(daoIDs, toString(event["dao_id"]))
	}
	return st.DeleteDaos(daoIDs)
}

// createAssets creates Assets and their initial AssetHoldings based on the
// block's events. Issued events are joined with MetadataSet events on
// asset_id; the metadata's symbol carries the Dao id. An Issued event without
// same-block metadata is dropped.
func (h *EventHandler) createAssets(st *Store, block *Block) error {
	var assets []*Asset
	var holdings []*AssetHolding
	for _, issued := range block.Events("Assets", "Issued") {
		for _, metadata := range block.Events("Assets", "MetadataSet") {
			if toInt64(issued["asset_id"]) == toInt64(metadata["asset_id"]) {
				assetID := toInt64(metadata["asset_id"])
				owner := toString(issued["owner"])
				balance := toInt64(issued["total_supply"])
				assets = append(assets, &Asset{
					ID:          assetID,
					DaoID:       toString(metadata["symbol"]),
					OwnerID:     owner,
					TotalSupply: balance,
				})
				holdings = append(holdings, &AssetHolding{
					AssetID: assetID,
					OwnerID: owner,
					Balance: balance,
				})
				break
			}
		}
	}
	if len(assets) == 0 {
		return nil
	}
	if err := st.CreateAssets(assets); err != nil {
		return err
	}
	return st.CreateHoldings(holdings)
}

// transferAssets moves amounts of tokens between AssetHoldings based on the
// block's events. All referenced holdings are loaded in one round trip,
// mutated in event order, then written back in bulk.
func (h *EventHandler) transferAssets(st *Store, block *Block) error {
	type transfer struct {
		assetID  int64
		amount   int64
		from, to string
	}
	var transfers []transfer
	seen := map[HoldingKey]bool{}
	var keys []HoldingKey
	for _, event := range block.Events("Assets", "Transferred") {
		t := transfer{
			assetID: toInt64(event["asset_id"]),
			amount:  toInt64(event["amount"]),
			from:    toString(event["from"]),
			to:      toString(event["to"]),
		}
		transfers = append(transfers, t)
		for _, owner := range []string{t.from, t.to} {
			key := HoldingKey{AssetID: t.assetID, OwnerID: owner}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	if len(transfers) == 0 {
		return nil
	}

	existing := map[HoldingKey]*AssetHolding{}
	loaded, err := st.HoldingsByKeys(keys)
	if err != nil {
		return err
	}
	for _, holding := range loaded {
		existing[HoldingKey{AssetID: holding.AssetID, OwnerID: holding.OwnerID}] = holding
	}

	created := map[HoldingKey]*AssetHolding{}
	var createOrder []*AssetHolding
	for _, t := range transfers {
		// the sending holding must exist; a transfer from an unknown
		// holding is chain level corruption and aborts the block
		sender := existing[HoldingKey{AssetID: t.assetID, OwnerID: t.from}]
		if sender == nil {
			return fmt.Errorf("transfer of asset %d from unknown holding %s", t.assetID, t.from)
		}
		sender.Balance -= t.amount

		toKey := HoldingKey{AssetID: t.assetID, OwnerID: t.to}
		if holding := created[toKey]; holding != nil {
			holding.Balance += t.amount
		} else if holding := existing[toKey]; holding != nil {
			holding.Balance += t.amount
		} else {
			holding := &AssetHolding{AssetID: t.assetID, OwnerID: t.to, Balance: t.amount}
			created[toKey] = holding
			createOrder = append(createOrder, holding)
		}
	}
	if err := st.SaveHoldings(loaded); err != nil {
		return err
	}
	return st.CreateHoldings(createOrder)
}

// delegateAssets points holdings' voting power at another account based on
// the block's events.
func (h *EventHandler) delegateAssets(st *Store, block *Block) error {
	data := map[HoldingKey]string{}
	var keys []HoldingKey
	for _, event := range block.Events("Assets", "Delegated") {
		key := HoldingKey{AssetID: toInt64(event["asset_id"]), OwnerID: toString(event["from"])}
		if _, seen := data[key]; !seen {
			keys = append(keys, key)
		}
		data[key] = toString(event["to"])
	}
	if len(data) == 0 {
		return nil
	}
	holdings, err := st.HoldingsByKeys(keys)
	if err != nil {
		return err
	}
	for _, holding := range holdings {
		target := data[HoldingKey{AssetID: holding.AssetID, OwnerID: holding.OwnerID}]
		holding.DelegatedToID = &target
	}
	return st.SaveHoldings(holdings)
}

// revokeAssetDelegations clears delegations based on the block's events.
func (h *EventHandler) revokeAssetDelegations(st *Store, block *Block) error {
	var triples [][3]any
	for _, event := range block.Events("Assets", "DelegationRevoked") {
		triples = append(triples, [3]any{
			toInt64(event["asset_id"]),
			toString(event["delegated_by"]),
			toString(event["revoked_from"]),
		})
	}
	return st.RevokeDelegations(triples)
}

// setDaoMetadata joins DaoMetadataSet events with set_metadata extrinsics and
// schedules the asynchronous metadata download.
func (h *EventHandler) setDaoMetadata(_ *Store, block *Block) error {
	daoMetadata := map[string]MetadataPair{}
	for _, event := range block.Events("DaoCore", "DaoMetadataSet") {
		for _, extrinsic := range block.Extrinsics("DaoCore", "set_metadata") {
			if daoID := toString(event["dao_id"]); daoID == toString(extrinsic["dao_id"]) {
				daoMetadata[daoID] = MetadataPair{
					URL:  toString(extrinsic["meta"]),
					Hash: toString(extrinsic["hash"]),
				}
			}
		}
	}
	if len(daoMetadata) > 0 && h.tasks != nil {
		h.tasks.UpdateDaoMetadata(daoMetadata)
	}
	return nil
}

// daoSetGovernances replaces Daos' governance based on the block's events.
func (h *EventHandler) daoSetGovernances(st *Store, block *Block) error {
	var governances []*Governance
	var daoIDs []string
	for _, event := range block.Events("Votes", "SetGovernanceMajorityVote") {
		daoID := toString(event["dao_id"])
		daoIDs = append(daoIDs, daoID)
		governances = append(governances, &Governance{
			DaoID:                daoID,
			ProposalDuration:     toInt64(event["proposal_duration"]),
			ProposalTokenDeposit: toInt64(event["proposal_token_deposit"]),
			MinimumMajority:      toInt64(event["minimum_majority_per_1024"]),
			Type:                 GovernanceTypeMajorityVote,
		})
	}
	return st.ReplaceGovernances(daoIDs, governances)
}

// createProposals creates Proposals based on the block's events. For every
// proposal a Vote placeholder is created per effective voter of the Dao's
// asset, snapshotting voting power at creation time.
func (h *EventHandler) createProposals(st *Store, block *Block) error {
	var proposals []*Proposal
	var daoIDs []string
	seenDaos := map[string]bool{}
	for _, event := range block.Events("Votes", "ProposalCreated") {
		daoID := toString(event["dao_id"])
		if !seenDaos[daoID] {
			seenDaos[daoID] = true
			daoIDs = append(daoIDs, daoID)
		}
		proposals = append(proposals, &Proposal{
			ID:               toString(event["proposal_id"]),
			DaoID:            daoID,
			CreatorID:        toString(event["creator"]),
			BirthBlockNumber: block.Number,
			Status:           ProposalStatusRunning,
		})
	}
	if len(proposals) == 0 {
		return nil
	}

	balances, err := st.VoterBalancesByDaos(daoIDs)
	if err != nil {
		return err
	}
	// holdings credit their balance to the delegate when set, else the owner
	daoVoterPower := map[string]map[string]int64{}
	daoVoterOrder := map[string][]string{}
	for _, b := range balances {
		voter := b.OwnerID
		if b.DelegatedToID != nil {
			voter = *b.DelegatedToID
		}
		if daoVoterPower[b.DaoID] == nil {
			daoVoterPower[b.DaoID] = map[string]int64{}
		}
		if _, seen := daoVoterPower[b.DaoID][voter]; !seen {
			daoVoterOrder[b.DaoID] = append(daoVoterOrder[b.DaoID], voter)
		}
		daoVoterPower[b.DaoID][voter] += b.Balance
	}

	if err := st.CreateProposals(proposals); err != nil {
		return err
	}
	var votes []*Vote
	for _, proposal := range proposals {
		for _, voter := range daoVoterOrder[proposal.DaoID] {
			votes = append(votes, &Vote{
				ProposalID:  proposal.ID,
				VoterID:     voter,
				VotingPower: daoVoterPower[proposal.DaoID][voter],
			})
		}
	}
	return st.CreateVotes(votes)
}

// setProposalMetadata joins ProposalMetadataSet events with set_metadata
// extrinsics, records the announced url/hash and schedules the asynchronous
// metadata download.
func (h *EventHandler) setProposalMetadata(st *Store, block *Block) error {
	proposalData := map[string]MetadataPair{}
	var proposalIDs []string
	for _, event := range block.Events("Votes", "ProposalMetadataSet") {
		for _, extrinsic := range block.Extrinsics("Votes", "set_metadata") {
			if proposalID := toString(extrinsic["proposal_id"]); proposalID == toString(event["proposal_id"]) {
				if _, seen := proposalData[proposalID]; !seen {
					proposalIDs = append(proposalIDs, proposalID)
				}
				proposalData[proposalID] = MetadataPair{
					URL:  toString(extrinsic["meta"]),
					Hash: toString(extrinsic["hash"]),
				}
			}
		}
	}
	if len(proposalData) == 0 {
		return nil
	}
	proposals, err := st.ProposalsByIDs(proposalIDs)
	if err != nil {
		return err
	}
	for _, proposal := range proposals {
		pair := proposalData[proposal.ID]
		url, hash := pair.URL, pair.Hash
		proposal.MetadataURL = &url
		proposal.MetadataHash = &hash
		proposal.SetupComplete = true
	}
	if err := st.SaveProposals(proposals); err != nil {
		return err
	}
	if h.tasks != nil {
		h.tasks.UpdateProposalMetadata(proposalIDs)
	}
	return nil
}

// registerVotes updates pre-created Vote rows based on the block's events.
func (h *EventHandler) registerVotes(st *Store, block *Block) error {
	voting := map[string]map[string]bool{}   // proposal -> voter set
	inFavor := map[string]map[string]bool{}  // proposal -> voter -> in favor
	for _, event := range block.Events("Votes", "VoteCast") {
		proposalID := toString(event["proposal_id"])
		voter := toString(event["voter"])
		if voting[proposalID] == nil {
			voting[proposalID] = map[string]bool{}
			inFavor[proposalID] = map[string]bool{}
		}
		voting[proposalID][voter] = true
		inFavor[proposalID][voter] = toBool(event["in_favor"])
	}
	if len(voting) == 0 {
		return nil
	}
	votes, err := st.VotesByProposalVoters(voting)
	if err != nil {
		return err
	}
	for _, vote := range votes {
		value := inFavor[vote.ProposalID][vote.VoterID]
		vote.InFavor = &value
	}
	return st.SaveVotes(votes)
}

// finalizeProposals moves Proposals to PENDING or REJECTED based on the
// block's events.
func (h *EventHandler) finalizeProposals(st *Store, block *Block) error {
	var accepted, rejected []string
	for _, event := range block.Events("Votes", "ProposalAccepted") {
		accepted = append(accepted, toString(event["proposal_id"]))
	}
	for _, event := range block.Events("Votes", "ProposalRejected") {
		rejected = append(rejected, toString(event["proposal_id"]))
	}
	if err := st.SetProposalStatus(accepted, ProposalStatusPending); err != nil {
		return err
	}
	return st.SetProposalStatus(rejected, ProposalStatusRejected)
}

// faultProposals marks Proposals FAULTED with their reason based on the
// block's events.
func (h *EventHandler) faultProposals(st *Store, block *Block) error {
	faulted := map[string]string{}
	var ids []string
	for _, event := range block.Events("Votes", "ProposalFaulted") {
		id := toString(event["proposal_id"])
		if _, seen := faulted[id]; !seen {
			ids = append(ids, id)
		}
		faulted[id] = toString(event["reason"])
	}
	if len(faulted) == 0 {
		return nil
	}
	proposals, err := st.ProposalsByIDs(ids)
	if err != nil {
		return err
	}
	for _, proposal := range proposals {
		reason := faulted[proposal.ID]
		proposal.Fault = &reason
		proposal.Status = ProposalStatusFaulted
	}
	return st.SaveProposals(proposals)
}

// handleNewTransactions creates or updates MultiSigTransactions based on the
// block's NewMultisig events. An event matching an existing pending
// transaction appends its approver; otherwise a MultiSig and a fresh
// transaction are created.
func (h *EventHandler) handleNewTransactions(st *Store, block *Block) error {
	transactionData := map[TransactionKey]string{}
	var keys []TransactionKey
	for _, event := range block.Events("Multisig", "NewMultisig") {
		key := TransactionKey{CallHash: toString(event["call_hash"]), Multisig: toString(event["multisig"])}
		if _, seen := transactionData[key]; !seen {
			keys = append(keys, key)
		}
		transactionData[key] = toString(event["approving"])
	}
	if len(transactionData) == 0 {
		return nil
	}

	pending, err := st.PendingTransactionsByKeys(keys)
	if err != nil {
		return err
	}
	for _, transaction := range pending {
		key := TransactionKey{CallHash: transaction.CallHash, Multisig: transaction.MultisigAddress}
		transaction.Approvers = append(transaction.Approvers, transactionData[key])
		delete(transactionData, key)
	}
	if err := st.SaveMultiSigTransactions(pending); err != nil {
		return err
	}

	if len(transactionData) == 0 {
		return nil
	}
	var multisigs []*MultiSig
	var transactions []*MultiSigTransaction
	for _, key := range keys {
		approver, ok := transactionData[key]
		if !ok {
			continue
		}
		multisigs = append(multisigs, &MultiSig{Address: key.Multisig})
		transactions = append(transactions, &MultiSigTransaction{
			MultisigAddress: key.Multisig,
			CallHash:        key.CallHash,
			Approvers:       []string{approver},
			Status:          TransactionStatusPending,
		})
	}
	if err := st.CreateMultiSigs(multisigs); err != nil {
		return err
	}
	return st.CreateMultiSigTransactions(transactions)
}

// approveTransactions appends approvers to pending MultiSigTransactions based
// on the block's events.
func (h *EventHandler) approveTransactions(st *Store, block *Block) error {
	dataByKey := map[TransactionKey][]string{}
	var keys []TransactionKey
	for _, event := range block.Events("Multisig", "MultisigApproval") {
		key := TransactionKey{CallHash: toString(event["call_hash"]), Multisig: toString(event["multisig"])}
		if _, seen := dataByKey[key]; !seen {
			keys = append(keys, key)
		}
		dataByKey[key] = append(dataByKey[key], toString(event["approving"]))
	}
	if len(dataByKey) == 0 {
		return nil
	}
	pending, err := st.PendingTransactionsByKeys(keys)
	if err != nil {
		return err
	}
	for _, transaction := range pending {
		key := TransactionKey{CallHash: transaction.CallHash, Multisig: transaction.MultisigAddress}
		transaction.Approvers = append(transaction.Approvers, dataByKey[key]...)
	}
	return st.SaveMultiSigTransactions(pending)
}

// executeTransactions finalizes MultiSigTransactions based on the block's
// MultisigExecuted events. The executed call is recovered by joining against
// as_multi extrinsics on the recomputed call hash; on a match the call
// payload, timepoint and any referenced projection ids are recorded.
func (h *EventHandler) executeTransactions(st *Store, block *Block) error {
	dataByKey := map[TransactionKey]string{}
	var keys []TransactionKey
	for _, event := range block.Events("Multisig", "MultisigExecuted") {
		key := TransactionKey{CallHash: toString(event["call_hash"]), Multisig: toString(event["multisig"])}
		if _, seen := dataByKey[key]; !seen {
			keys = append(keys, key)
		}
		dataByKey[key] = toString(event["approving"])
	}
	if len(dataByKey) == 0 {
		return nil
	}

	type callData struct {
		module    string
		function  string
		args      map[string]any
		timepoint map[string]any
	}
	callsByHash := map[string]callData{}
	for _, extrinsic := range block.Extrinsics("Multisig", "as_multi") {
		call := toMap(extrinsic["call"])
		args := map[string]any{}
		if rawArgs, ok := call["call_args"].([]any); ok {
			for _, rawArg := range rawArgs {
				arg := toMap(rawArg)
				args[toString(arg["name"])] = arg["value"]
			}
		}
		data := callData{
			module:    toString(call["call_module"]),
			function:  toString(call["call_function"]),
			args:      args,
			timepoint: toMap(extrinsic["maybe_timepoint"]),
		}
		callsByHash[h.chain.CreateMultisigCallHash(data.module, data.function, data.args)] = data
	}

	pending, err := st.PendingTransactionsByKeys(keys)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, transaction := range pending {
		if data, ok := callsByHash[transaction.CallHash]; ok {
			function := data.function
			targets := ParseCallData(data.module, data.args)
			transaction.Call = map[string]any{
				"module":    data.module,
				"function":  data.function,
				"args":      data.args,
				"timepoint": data.timepoint,
				"hash":      transaction.CallHash,
			}
			transaction.CallFunction = &function
			transaction.Timepoint = data.timepoint
			transaction.AssetID = targets.AssetID
			transaction.DaoID = targets.DaoID
			transaction.ProposalID = targets.ProposalID
		}
		key := TransactionKey{CallHash: transaction.CallHash, Multisig: transaction.MultisigAddress}
		transaction.Approvers = append(transaction.Approvers, dataByKey[key])
		transaction.Status = TransactionStatusExecuted
		executedAt := now
		transaction.ExecutedAt = &executedAt
	}
	return st.SaveMultiSigTransactions(pending)
}

// cancelTransactions cancels pending MultiSigTransactions based on the
// block's events.
func (h *EventHandler) cancelTransactions(st *Store, block *Block) error {
	dataByKey := map[TransactionKey]string{}
	var keys []TransactionKey
	for _, event := range block.Events("Multisig", "MultisigCancelled") {
		key := TransactionKey{CallHash: toString(event["call_hash"]), Multisig: toString(event["multisig"])}
		if _, seen := dataByKey[key]; !seen {
			keys = append(keys, key)
		}
		dataByKey[key] = toString(event["cancelling"])
	}
	if len(dataByKey) == 0 {
		return nil
	}
	pending, err := st.PendingTransactionsByKeys(keys)
	if err != nil {
		return err
	}
	for _, transaction := range pending {
		key := TransactionKey{CallHash: transaction.CallHash, Multisig: transaction.MultisigAddress}
		canceledBy := dataByKey[key]
		transaction.CanceledBy = &canceledBy
		transaction.Status = TransactionStatusCancelled
	}
	return st.SaveMultiSigTransactions(pending)
}

func isIntegrityViolation(err error) bool {
	if isUniqueViolation(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "violates foreign key constraint")
}
