// Package crdtop defines the wire representation of every operation
// CollaborativeDocument produces and consumes, plus the conflict resolver
// that classifies how a pair of ops interact. CrdtOp follows patch.go's
// Operation{Kind OpKind, Path string, Old any, New any, ...} shape: one
// flat struct tagged by Kind rather than a Go sum type, so a single value
// can marshal to the {"type": "...", ...} wire contract directly.
// clock.RootOpId doubles as the "no predecessor" / "no target" sentinel
// everywhere an optional OpId is needed, the same convention rga and
// tree already use.
package crdtop

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/tree"
)

// OpKind tags which variant of CrdtOp a value represents.
type OpKind int

const (
	TextInsert OpKind = iota
	TextDelete
	BlockInsert
	BlockDelete
	BlockMove
	BlockUpdate
	FormatSet
)

func (k OpKind) String() string {
	switch k {
	case TextInsert:
		return "TextInsert"
	case TextDelete:
		return "TextDelete"
	case BlockInsert:
		return "BlockInsert"
	case BlockDelete:
		return "BlockDelete"
	case BlockMove:
		return "BlockMove"
	case BlockUpdate:
		return "BlockUpdate"
	case FormatSet:
		return "FormatSet"
	default:
		return "Unknown"
	}
}

func opKindFromString(s string) (OpKind, error) {
	switch s {
	case "TextInsert":
		return TextInsert, nil
	case "TextDelete":
		return TextDelete, nil
	case "BlockInsert":
		return BlockInsert, nil
	case "BlockDelete":
		return BlockDelete, nil
	case "BlockMove":
		return BlockMove, nil
	case "BlockUpdate":
		return BlockUpdate, nil
	case "FormatSet":
		return FormatSet, nil
	default:
		return 0, fmt.Errorf("crdtop: unknown op type %q", s)
	}
}

// CrdtOp is every operation CollaborativeDocument emits or applies, tagged
// by Kind. Only the fields relevant to Kind are meaningful:
//
//	TextInsert   : ID, NodeID (owning block), ParentOpID (preceding char), Char
//	TextDelete   : ID, TargetID (char being tombstoned)
//	BlockInsert  : ID, ParentOpID (parent block), AfterSibling, NodeID (new block), Data
//	BlockDelete  : ID, Target (block being tombstoned)
//	BlockMove    : ID, Target, NewParent, AfterSibling
//	BlockUpdate  : ID, Target, Data
//	FormatSet    : ID, NodeID (owning block), StartOpID, EndOpID, Attribute, Value, Timestamp
type CrdtOp struct {
	Kind OpKind
	ID   clock.OpId

	NodeID     tree.NodeId
	ParentOpID clock.OpId
	Char       rune

	TargetID clock.OpId

	Target       clock.OpId
	NewParent    clock.OpId
	AfterSibling clock.OpId
	Data         tree.BlockData

	Attribute string
	Value     any
	Timestamp clock.Timestamp
	StartOpID clock.OpId
	EndOpID   clock.OpId
}

type wireOp struct {
	Type         string          `json:"type"`
	ID           clock.OpId      `json:"id"`
	NodeID       tree.NodeId     `json:"node_id,omitempty"`
	ParentOpID   *clock.OpId     `json:"parent_op_id,omitempty"`
	Char         *rune           `json:"char,omitempty"`
	TargetID     *clock.OpId     `json:"target_id,omitempty"`
	Target       *clock.OpId     `json:"target,omitempty"`
	NewParent    *clock.OpId     `json:"new_parent,omitempty"`
	AfterSibling *clock.OpId     `json:"after_sibling,omitempty"`
	Data         *tree.BlockData `json:"data,omitempty"`
	Attribute    string          `json:"attribute,omitempty"`
	Value        any             `json:"value,omitempty"`
	Timestamp    *clock.Timestamp `json:"timestamp,omitempty"`
	StartOpID    *clock.OpId     `json:"start_op_id,omitempty"`
	EndOpID      *clock.OpId     `json:"end_op_id,omitempty"`
}

// MarshalJSON encodes as {"type": "<Variant>", ...} per the wire contract,
// omitting fields the variant doesn't use.
func (op CrdtOp) MarshalJSON() ([]byte, error) {
	w := wireOp{Type: op.Kind.String(), ID: op.ID}

	switch op.Kind {
	case TextInsert:
		w.NodeID = op.NodeID
		w.ParentOpID = &op.ParentOpID
		w.Char = &op.Char
	case TextDelete:
		w.TargetID = &op.TargetID
	case BlockInsert:
		w.ParentOpID = &op.ParentOpID
		w.AfterSibling = &op.AfterSibling
		w.NodeID = op.NodeID
		w.Data = &op.Data
	case BlockDelete:
		w.Target = &op.Target
	case BlockMove:
		w.Target = &op.Target
		w.NewParent = &op.NewParent
		w.AfterSibling = &op.AfterSibling
	case BlockUpdate:
		w.Target = &op.Target
		w.Data = &op.Data
	case FormatSet:
		w.NodeID = op.NodeID
		w.StartOpID = &op.StartOpID
		w.EndOpID = &op.EndOpID
		w.Attribute = op.Attribute
		w.Value = op.Value
		w.Timestamp = &op.Timestamp
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the {"type": "...", ...} wire format back into a
// CrdtOp.
func (op *CrdtOp) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	var w wireOp
	if err := dec.Decode(&w); err != nil {
		return err
	}

	kind, err := opKindFromString(w.Type)
	if err != nil {
		return err
	}

	out := CrdtOp{Kind: kind, ID: w.ID}
	if w.ParentOpID != nil {
		out.ParentOpID = *w.ParentOpID
	}
	if w.Char != nil {
		out.Char = *w.Char
	}
	if w.TargetID != nil {
		out.TargetID = *w.TargetID
	}
	if w.Target != nil {
		out.Target = *w.Target
	}
	if w.NewParent != nil {
		out.NewParent = *w.NewParent
	}
	if w.AfterSibling != nil {
		out.AfterSibling = *w.AfterSibling
	}
	if w.Data != nil {
		out.Data = *w.Data
	}
	if w.Timestamp != nil {
		out.Timestamp = *w.Timestamp
	}
	if w.StartOpID != nil {
		out.StartOpID = *w.StartOpID
	}
	if w.EndOpID != nil {
		out.EndOpID = *w.EndOpID
	}
	out.NodeID = w.NodeID
	out.Attribute = w.Attribute
	out.Value = w.Value

	*op = out
	return nil
}
