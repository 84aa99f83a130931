package core

// Chain client — wraps the node's JSON-RPC surface: block and event fetching,
// account map queries and signed extrinsic submission.

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// FetchOpts selects which block to fetch. Hash takes priority over Number;
// with neither set the head of the chain is fetched.
type FetchOpts struct {
	Hash   string
	Number *int64
}

// BlockEnvelope is the decoded record of one chain block before persistence.
type BlockEnvelope struct {
	Number     int64
	Hash       string
	ParentHash string
	Extrinsics ExtrinsicMap
	Events     EventMap
}

// Chain is the surface of the chain client consumed by the ingestor and the
// event handler. It is an interface so tests can substitute a stub node.
type Chain interface {
	FetchBlock(ctx context.Context, opts FetchOpts) (*BlockEnvelope, error)
	QueryAccounts(ctx context.Context) ([]string, error)
	CreateMultisigCallHash(module, function string, args map[string]any) string
	Close() error
}

// Call is a composed runtime call ready for submission.
type Call struct {
	Module   string         `json:"call_module"`
	Function string         `json:"call_function"`
	Args     map[string]any `json:"call_args"`
}

// ChainClient talks to a substrate style node.
type ChainClient struct {
	rpc    RPC
	preset string
	log    *logrus.Logger
}

// NewChainClient dials the node at url using the given type registry preset.
func NewChainClient(url, preset string, log *logrus.Logger) (*ChainClient, error) {
	rpc, err := DialRPC(url)
	if err != nil {
		return nil, err
	}
	return &ChainClient{rpc: rpc, preset: preset, log: log}, nil
}

// NewChainClientWithRPC wires a client over an existing transport.
func NewChainClientWithRPC(rpc RPC, log *logrus.Logger) *ChainClient {
	return &ChainClient{rpc: rpc, log: log}
}

// wire shapes of the node's get_block / get_events responses
type rawBlock struct {
	Header struct {
		Number     int64  `json:"number"`
		Hash       string `json:"hash"`
		ParentHash string `json:"parentHash"`
	} `json:"header"`
	Extrinsics []struct {
		Value struct {
			Call struct {
				CallModule   string `json:"call_module"`
				CallFunction string `json:"call_function"`
				CallArgs     []struct {
					Name  string `json:"name"`
					Value any    `json:"value"`
				} `json:"call_args"`
			} `json:"call"`
		} `json:"value"`
	} `json:"extrinsics"`
}

type rawEvent struct {
	Value struct {
		ModuleID   string         `json:"module_id"`
		EventID    string         `json:"event_id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"value"`
}

// FetchBlock fetches a block envelope from the chain. Events are fetched in a
// second round trip keyed on the returned block hash. An empty node response
// is a hard error, distinct from transport faults.
func (c *ChainClient) FetchBlock(ctx context.Context, opts FetchOpts) (*BlockEnvelope, error) {
	params := map[string]any{}
	// the node requires block_hash xor block_number
	if opts.Hash != "" {
		params["block_hash"] = opts.Hash
	} else if opts.Number != nil {
		params["block_number"] = *opts.Number
	}

	var block rawBlock
	if err := c.rpc.Call(ctx, "get_block", params, &block); err != nil {
		return nil, fmt.Errorf("fetching block from chain: %w", err)
	}
	if block.Header.Hash == "" {
		return nil, ErrEmptyRPCResponse
	}

	extrinsics := ExtrinsicMap{}
	for _, ext := range block.Extrinsics {
		call := ext.Value.Call
		args := make(map[string]any, len(call.CallArgs))
		for _, arg := range call.CallArgs {
			args[arg.Name] = arg.Value
		}
		if extrinsics[call.CallModule] == nil {
			extrinsics[call.CallModule] = map[string][]map[string]any{}
		}
		extrinsics[call.CallModule][call.CallFunction] = append(extrinsics[call.CallModule][call.CallFunction], args)
	}

	var rawEvents []rawEvent
	if err := c.rpc.Call(ctx, "get_events", map[string]any{"block_hash": block.Header.Hash}, &rawEvents); err != nil {
		return nil, fmt.Errorf("fetching events from chain: %w", err)
	}
	c.log.Debugf("fetched block %d (%s) with %d extrinsics and %d events", block.Header.Number, block.Header.Hash, len(block.Extrinsics), len(rawEvents))
	events := EventMap{}
	for _, ev := range rawEvents {
		if events[ev.Value.ModuleID] == nil {
			events[ev.Value.ModuleID] = map[string][]map[string]any{}
		}
		events[ev.Value.ModuleID][ev.Value.EventID] = append(events[ev.Value.ModuleID][ev.Value.EventID], ev.Value.Attributes)
	}

	return &BlockEnvelope{
		Number:     block.Header.Number,
		Hash:       block.Header.Hash,
		ParentHash: block.Header.ParentHash,
		Extrinsics: extrinsics,
		Events:     events,
	}, nil
}

// QueryAccounts iterates the chain's System.Account storage map and returns
// all account addresses. Used to seed the Account table.
func (c *ChainClient) QueryAccounts(ctx context.Context) ([]string, error) {
	var pairs [][]any
	params := map[string]any{"module": "System", "storage_function": "Account"}
	if err := c.rpc.Call(ctx, "query_map", params, &pairs); err != nil {
		return nil, fmt.Errorf("querying account map: %w", err)
	}
	addresses := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) == 0 {
			continue
		}
		addresses = append(addresses, toString(pair[0]))
	}
	return addresses, nil
}

// CreateMultisigCallHash hashes a composed call with MultisigCallHash so rows
// recorded from as_multi extrinsics can be joined against event announced
// hashes. The hash covers a JSON encoding of the call, not the node's own call
// encoding, so it only equals hashes produced by MultisigCallHash.
func (c *ChainClient) CreateMultisigCallHash(module, function string, args map[string]any) string {
	return MultisigCallHash(module, function, args)
}

// SubmitSignedExtrinsic composes, signs and submits a call on behalf of
// signer. It is used by external tooling only; the ingestor never writes to
// the chain.
func (c *ChainClient) SubmitSignedExtrinsic(ctx context.Context, call Call, signer string, waitForInclusion bool) error {
	params := map[string]any{
		"call":               call,
		"signer":             signer,
		"wait_for_inclusion": waitForInclusion,
	}
	if err := c.rpc.Call(ctx, "submit_extrinsic", params, nil); err != nil {
		return fmt.Errorf("submitting extrinsic %s.%s: %w", call.Module, call.Function, err)
	}
	return nil
}

// CreateDao submits a signed create_dao extrinsic.
func (c *ChainClient) CreateDao(ctx context.Context, daoID, daoName, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "DaoCore",
		Function: "create_dao",
		Args:     map[string]any{"dao_id": daoID, "dao_name": daoName},
	}, signer, false)
}

// DestroyDao submits a signed destroy_dao extrinsic.
func (c *ChainClient) DestroyDao(ctx context.Context, daoID, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "DaoCore",
		Function: "destroy_dao",
		Args:     map[string]any{"dao_id": daoID},
	}, signer, false)
}

// IssueTokens submits a signed issue_token extrinsic, creating the Dao's
// asset with the given supply.
func (c *ChainClient) IssueTokens(ctx context.Context, daoID string, supply int64, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "DaoCore",
		Function: "issue_token",
		Args:     map[string]any{"dao_id": daoID, "supply": supply},
	}, signer, false)
}

// TransferAsset submits a signed asset transfer extrinsic.
func (c *ChainClient) TransferAsset(ctx context.Context, assetID int64, target string, amount int64, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "Assets",
		Function: "transfer",
		Args:     map[string]any{"id": assetID, "target": target, "amount": amount},
	}, signer, false)
}

// TransferBalance submits a signed native balance transfer extrinsic.
func (c *ChainClient) TransferBalance(ctx context.Context, target string, value int64, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "Balances",
		Function: "transfer",
		Args:     map[string]any{"dest": target, "value": value},
	}, signer, false)
}

// SetBalance submits a sudo wrapped set_balance extrinsic.
func (c *ChainClient) SetBalance(ctx context.Context, target string, newFree, newReserved int64, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "Sudo",
		Function: "sudo",
		Args: map[string]any{
			"call": Call{
				Module:   "Balances",
				Function: "set_balance",
				Args:     map[string]any{"who": target, "new_free": newFree, "new_reserved": newReserved},
			},
		},
	}, signer, false)
}

// SetDaoMetadata submits a signed set_metadata extrinsic for a Dao.
func (c *ChainClient) SetDaoMetadata(ctx context.Context, daoID, metadataURL, metadataHash, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "DaoCore",
		Function: "set_metadata",
		Args:     map[string]any{"dao_id": daoID, "meta": metadataURL, "hash": metadataHash},
	}, signer, false)
}

// SetGovernanceMajorityVote submits a signed extrinsic switching a Dao to
// majority vote governance.
func (c *ChainClient) SetGovernanceMajorityVote(ctx context.Context, daoID string, proposalDuration, proposalTokenDeposit, minimumMajorityPer1024 int64, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "Votes",
		Function: "set_governance_majority_vote",
		Args: map[string]any{
			"dao_id":                    daoID,
			"proposal_duration":         proposalDuration,
			"proposal_token_deposit":    proposalTokenDeposit,
			"minimum_majority_per_1024": minimumMajorityPer1024,
		},
	}, signer, false)
}

// CreateProposal submits a signed create_proposal extrinsic.
func (c *ChainClient) CreateProposal(ctx context.Context, daoID, proposalID, metadataURL, metadataHash, signer string) error {
	return c.SubmitSignedExtrinsic(ctx, Call{
		Module:   "Votes",
		Function: "create_proposal",
		Args: map[string]any{
			"dao_id":      daoID,
			"proposal_id": proposalID,
			"meta":        metadataURL,
			"hash":        metadataHash,
		},
	}, signer, false)
}

// Close releases the underlying transport.
func (c *ChainClient) Close() error {
	return c.rpc.Close()
}
