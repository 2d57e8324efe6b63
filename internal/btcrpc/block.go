package btcrpc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// BlockHeader is the subset of a block header the indexer needs before the
// first-inscription height, when full transaction data isn't required yet
// (SPEC_FULL.md §4.2).
type BlockHeader struct {
	Hash          chainhash.Hash
	PrevBlockHash chainhash.Hash
	Height        uint64
	Time          int64
}

// Block is a fully decoded block: header plus every transaction, grounded
// on the original indexer's BlockData (txid precomputed alongside each tx
// so downstream code never recomputes it).
type Block struct {
	Header BlockHeader
	Txs    []TxWithID
}

// TxWithID pairs a decoded transaction with its txid, computed once here
// since recomputing it from wire bytes is the single hottest op in the
// indexing loop.
type TxWithID struct {
	Tx   *wire.MsgTx
	Txid chainhash.Hash
}

// GetBlockCount returns the height of the best block.
func (c *Client) GetBlockCount() (uint64, error) {
	var height uint64
	if err := c.Call("getblockcount", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBlockHash returns the hash of the block at height, or IsNotFound(err)
// if the chain isn't that tall yet.
func (c *Client) GetBlockHash(height uint64) (chainhash.Hash, error) {
	var hashHex string
	if err := c.Call("getblockhash", []interface{}{height}, &hashHex); err != nil {
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(hashHex)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("parsing block hash: %w", err)
	}
	return *h, nil
}

// blockHeaderJSON mirrors bitcoind's getblockheader verbose reply.
type blockHeaderJSON struct {
	Hash          string `json:"hash"`
	PreviousHash  string `json:"previousblockhash"`
	Height        uint64 `json:"height"`
	Time          int64  `json:"time"`
}

// GetBlockHeader fetches only the header for hash, used below the
// first-inscription height when the sat index is disabled.
func (c *Client) GetBlockHeader(hash chainhash.Hash) (BlockHeader, error) {
	var hdr blockHeaderJSON
	if err := c.Call("getblockheader", []interface{}{hash.String(), true}, &hdr); err != nil {
		return BlockHeader{}, err
	}
	h, err := chainhash.NewHashFromStr(hdr.Hash)
	if err != nil {
		return BlockHeader{}, err
	}
	result := BlockHeader{Hash: *h, Height: hdr.Height, Time: hdr.Time}
	if hdr.PreviousHash != "" {
		prev, err := chainhash.NewHashFromStr(hdr.PreviousHash)
		if err != nil {
			return BlockHeader{}, err
		}
		result.PrevBlockHash = *prev
	}
	return result, nil
}

// GetBlock fetches the raw block at hash and decodes it with btcd's wire
// format, verbosity 0 ("getblock <hash> 0" returns the raw hex-encoded
// block exactly like Bitcoin Core's wire serialization).
func (c *Client) GetBlock(hash chainhash.Hash) (Block, error) {
	var blockHex string
	if err := c.Call("getblock", []interface{}{hash.String(), 0}, &blockHex); err != nil {
		return Block{}, err
	}

	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		return Block{}, fmt.Errorf("decoding block hex: %w", err)
	}

	var msgBlock wire.MsgBlock
	if err := msgBlock.Deserialize(bytesReader(raw)); err != nil {
		return Block{}, fmt.Errorf("deserializing block wire format: %w", err)
	}

	header, err := c.GetBlockHeader(hash)
	if err != nil {
		return Block{}, fmt.Errorf("fetching block header: %w", err)
	}

	txs := make([]TxWithID, len(msgBlock.Transactions))
	for i, tx := range msgBlock.Transactions {
		txs[i] = TxWithID{Tx: tx, Txid: tx.TxHash()}
	}

	return Block{Header: header, Txs: txs}, nil
}

// GetRawTransaction fetches and decodes a single transaction by txid.
func (c *Client) GetRawTransaction(txid chainhash.Hash) (*wire.MsgTx, error) {
	var txHex string
	if err := c.Call("getrawtransaction", []interface{}{txid.String()}, &txHex); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("decoding tx hex: %w", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytesReader(raw)); err != nil {
		return nil, fmt.Errorf("deserializing tx wire format: %w", err)
	}
	return &tx, nil
}
