package kernel

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/ledger"
)

// ABIJSON is the subset of the kernel contract interface used here.
const ABIJSON = `[
  {"type":"function","name":"writeContext","stateMutability":"payable",
   "inputs":[
     {"name":"topic","type":"bytes32"},
     {"name":"payloadHash","type":"bytes32"},
     {"name":"uriHash","type":"bytes32"},
     {"name":"metaHash","type":"bytes32"},
     {"name":"nonce","type":"uint64"}],
   "outputs":[
     {"name":"seq","type":"uint64"},
     {"name":"contextId","type":"bytes32"}]},
  {"type":"function","name":"authorNonce","stateMutability":"view",
   "inputs":[{"name":"author","type":"address"}],
   "outputs":[{"name":"","type":"uint64"}]},
  {"type":"function","name":"getWriteFeeFor","stateMutability":"view",
   "inputs":[{"name":"author","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"ContextWritten","anonymous":false,
   "inputs":[
     {"name":"topic","type":"bytes32","indexed":true},
     {"name":"seq","type":"uint64","indexed":true},
     {"name":"author","type":"address","indexed":true},
     {"name":"payloadHash","type":"bytes32","indexed":false},
     {"name":"uriHash","type":"bytes32","indexed":false},
     {"name":"metaHash","type":"bytes32","indexed":false},
     {"name":"contextId","type":"bytes32","indexed":false}]}
]`

const (
	methodWriteContext  = "writeContext"
	methodAuthorNonce   = "authorNonce"
	methodWriteFee      = "getWriteFeeFor"
	eventContextWritten = "ContextWritten"
)

var kernelABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("kernel: parse abi: %v", err))
	}
	return parsed
}

// ContextWrittenTopic is the log topic of the ContextWritten event.
func ContextWrittenTopic() common.Hash {
	return kernelABI.Events[eventContextWritten].ID
}

// PackWriteContext returns the writeContext calldata for rec: the selector
// followed by the record's fields in wire order, each in a 32-byte slot.
func PackWriteContext(rec commitment.Record) ([]byte, error) {
	return kernelABI.Pack(methodWriteContext,
		[32]byte(rec.TopicID), [32]byte(rec.PayloadDigest),
		[32]byte(rec.ReservedA), [32]byte(rec.ReservedB),
		rec.Sequence)
}

// UnpackWriteContext decodes writeContext calldata back into a record.
func UnpackWriteContext(data []byte) (commitment.Record, error) {
	var rec commitment.Record
	m := kernelABI.Methods[methodWriteContext]
	if len(data) < 4 || string(data[:4]) != string(m.ID) {
		return rec, fmt.Errorf("kernel: not a %s call", methodWriteContext)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return rec, fmt.Errorf("kernel: unpack %s: %w", methodWriteContext, err)
	}
	rec.Version = commitment.CurrentVersion
	rec.TopicID = args[0].([32]byte)
	rec.PayloadDigest = args[1].([32]byte)
	rec.ReservedA = args[2].([32]byte)
	rec.ReservedB = args[3].([32]byte)
	rec.Sequence = args[4].(uint64)
	return rec, nil
}

// DecodeContextWritten decodes one ContextWritten log.
func DecodeContextWritten(lg types.Log) (ledger.ContextEvent, error) {
	var ev ledger.ContextEvent
	if len(lg.Topics) != 4 || lg.Topics[0] != ContextWrittenTopic() {
		return ev, fmt.Errorf("kernel: log %s:%d is not %s", lg.TxHash.Hex(), lg.Index, eventContextWritten)
	}
	values, err := kernelABI.Unpack(eventContextWritten, lg.Data)
	if err != nil {
		return ev, fmt.Errorf("kernel: unpack %s: %w", eventContextWritten, err)
	}
	if len(values) != 4 {
		return ev, fmt.Errorf("kernel: %s carries %d values, want 4", eventContextWritten, len(values))
	}

	seq := new(big.Int).SetBytes(lg.Topics[2].Bytes())
	if !seq.IsUint64() {
		return ev, fmt.Errorf("kernel: %s seq overflows uint64", eventContextWritten)
	}

	ev.Topic = digest.Hash(lg.Topics[1])
	ev.Seq = seq.Uint64()
	ev.Author = common.BytesToAddress(lg.Topics[3].Bytes())
	ev.PayloadHash = values[0].([32]byte)
	ev.URIHash = values[1].([32]byte)
	ev.MetaHash = values[2].([32]byte)
	ev.ContextID = values[3].([32]byte)
	ev.BlockNumber = lg.BlockNumber
	ev.TxHash = lg.TxHash
	ev.LogIndex = lg.Index
	return ev, nil
}
