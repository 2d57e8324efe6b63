// Package inscription parses ordinal envelopes out of transaction
// witnesses and drives the per-transaction inscription state machine
// (SPEC_FULL.md §4.5).
package inscription

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Tag identifies a field inside an envelope.
type Tag uint8

const (
	TagContentType Tag = 1
	TagParent      Tag = 3
	TagPointer     Tag = 2
	TagMetadata    Tag = 5
	TagMetaprotocol Tag = 7
	TagContentEncoding Tag = 9
	TagDelegate    Tag = 11
)

// envelopeMagic is the protocol identifier pushed right after OP_IF.
var envelopeMagic = []byte("ord")

// Field is one raw tag/value pair read from an envelope, before the known
// tags are split out into Envelope's named fields.
type Field struct {
	Tag   uint8
	Value []byte
}

// Envelope is one parsed `OP_FALSE OP_IF "ord" ... OP_ENDIF` block found in
// a taproot script-path witness.
type Envelope struct {
	ContentType []byte
	Parent      []byte // 36-byte txid||index, unparsed
	Body        []byte

	// UnrecognizedEvenField is set when the envelope carried a tag this
	// parser doesn't know about, with an even tag number.
	UnrecognizedEvenField bool

	// Input/position bookkeeping filled in by the caller.
	InputIndex int
	Offset     int // envelope index within the input's witness
}

// ExtractEnvelopes scans every input's witness (tapscript leaf, i.e. the
// second-to-last witness element once a trailing annex is dropped) for
// envelopes; a witness with fewer than two such elements is skipped. It
// returns them in witness order, tagged with their input index.
func ExtractEnvelopes(tx *wire.MsgTx) []Envelope {
	var envelopes []Envelope
	for inIdx, in := range tx.TxIn {
		script := tapscriptFromWitness(in.Witness)
		if script == nil {
			continue
		}
		parsed := parseScript(script)
		for offset, e := range parsed {
			e.InputIndex = inIdx
			e.Offset = offset
			envelopes = append(envelopes, e)
		}
	}
	return envelopes
}

// tapscriptFromWitness picks the leaf script out of a taproot script-path
// spend witness: [..annex?] [script] [control block], with the control
// block's first byte identifying a leaf version.
func tapscriptFromWitness(witness wire.TxWitness) []byte {
	if len(witness) < 2 {
		return nil
	}
	// Drop a trailing annex (first byte 0x50) if present.
	items := witness
	last := items[len(items)-1]
	if len(last) > 0 && last[0] == 0x50 {
		items = items[:len(items)-1]
	}
	if len(items) < 2 {
		return nil
	}
	return items[len(items)-2]
}

// parseScript walks a tapscript leaf disassembling it into opcodes and
// data pushes, then extracts every OP_FALSE OP_IF "ord" ... OP_ENDIF
// envelope it contains, in order.
func parseScript(script []byte) []Envelope {
	tokens, ok := tokenize(script)
	if !ok {
		return nil
	}

	var envelopes []Envelope
	i := 0
	for i < len(tokens) {
		if tokens[i].op == txscript.OP_FALSE && i+1 < len(tokens) && tokens[i+1].op == txscript.OP_IF {
			env, consumed, ok := parseEnvelopeAt(tokens[i+2:])
			if ok {
				envelopes = append(envelopes, env)
			}
			i += 2 + consumed
			continue
		}
		i++
	}
	return envelopes
}

type token struct {
	op   byte
	data []byte
}

// tokenize disassembles script into a flat list of opcode/data tokens.
// Non-standard or truncated scripts are tolerated best-effort: real
// inscriptions are always well-formed since the inscribing wallet wrote
// them, but arbitrary on-chain scripts are not guaranteed to be.
func tokenize(script []byte) ([]token, bool) {
	var tokens []token
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		tokens = append(tokens, token{op: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	if tokenizer.Err() != nil {
		return tokens, len(tokens) > 0
	}
	return tokens, true
}

// parseEnvelopeAt parses one envelope body starting right after OP_IF,
// expecting the "ord" magic first. Returns how many tokens (including the
// closing OP_ENDIF) were consumed.
func parseEnvelopeAt(tokens []token) (Envelope, int, bool) {
	if len(tokens) == 0 || !bytes.Equal(tokens[0].data, envelopeMagic) {
		return Envelope{}, 0, false
	}

	var env Envelope
	i := 1
	inBody := false
	for i < len(tokens) {
		if tokens[i].op == txscript.OP_ENDIF {
			i++
			break
		}
		if inBody {
			env.Body = append(env.Body, tokens[i].data...)
			i++
			continue
		}

		if len(tokens[i].data) == 0 && tokens[i].op == txscript.OP_0 {
			// Zero-length push separates header fields from the body.
			inBody = true
			i++
			continue
		}

		if i+1 >= len(tokens) {
			break
		}
		tagBytes := tokens[i].data
		value := tokens[i+1].data
		i += 2

		if len(tagBytes) != 1 {
			continue // malformed tag, ignore the field
		}
		tag := tagBytes[0]
		switch Tag(tag) {
		case TagContentType:
			env.ContentType = value
		case TagParent:
			env.Parent = value
		default:
			if tag%2 == 0 {
				env.UnrecognizedEvenField = true
			}
		}
	}

	return env, i, true
}
