package core

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// MultisigCallHash computes the blake2b-256 hash of a canonical JSON encoding
// of a runtime call; keys are sorted before marshalling, so the result is
// deterministic. The event handler compares it with the call hash carried by
// multisig events. It does not use the node's own call encoding, so it equals
// an event's hash only when that hash was produced by this function.
func MultisigCallHash(module, function string, args map[string]any) string {
	type kv struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	}
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	canonical := struct {
		Module   string `json:"call_module"`
		Function string `json:"call_function"`
		Args     []kv   `json:"call_args"`
	}{Module: module, Function: function, Args: make([]kv, 0, len(names))}
	for _, name := range names {
		canonical.Args = append(canonical.Args, kv{Name: name, Value: args[name]})
	}
	encoded, _ := json.Marshal(canonical)
	digest := blake2b.Sum256(encoded)
	return "0x" + hex.EncodeToString(digest[:])
}

// CallTargets holds the projection ids referenced by a multisig call, parsed
// from its arguments.
type CallTargets struct {
	AssetID    *int64
	DaoID      *string
	ProposalID *string
}

// ParseCallData inspects a call's arguments and resolves any referenced
// asset, dao, or proposal id. The Assets module uses both "id" and "asset_id"
// for its asset argument; both map to AssetID.
func ParseCallData(module string, args map[string]any) CallTargets {
	targets := CallTargets{}
	for name, value := range args {
		switch name {
		case "asset_id":
			id := toInt64(value)
			targets.AssetID = &id
		case "id":
			if module == "Assets" {
				id := toInt64(value)
				targets.AssetID = &id
			}
		case "dao_id":
			id := toString(value)
			targets.DaoID = &id
		case "proposal_id":
			id := toString(value)
			targets.ProposalID = &id
		}
	}
	return targets
}
