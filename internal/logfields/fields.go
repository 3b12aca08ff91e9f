// Package logfields holds the structured log fields shared by every module.
package logfields

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lumen.dev/sdk/digest"
)

// Log Fields.
const (
	FieldTopic         = "topic"
	FieldTopicID       = "topicId"
	FieldAuthor        = "author"
	FieldSequence      = "sequence"
	FieldTxHash        = "txHash"
	FieldPayloadDigest = "payloadDigest"
	FieldContextID     = "contextId"
	FieldBlock         = "block"
	FieldFromBlock     = "fromBlock"
	FieldToBlock       = "toBlock"
	FieldChainID       = "chainId"
	FieldKernel        = "kernel"
	FieldCID           = "cid"
	FieldBackend       = "backend"
	FieldAddress       = "address"
	FieldTotal         = "total"
	FieldConfirmations = "confirmations"
	FieldState         = "state"
	FieldTool          = "tool"
	FieldSubscriber    = "subscriber"
	FieldLogSpec       = "logSpec"
	FieldConfig        = "config"
	FieldAttempt       = "attempt"
	FieldEventKey      = "eventKey"
	FieldDuration      = "duration"
)

// WithTopic sets the topic field to a topic name.
func WithTopic(value string) zap.Field {
	return zap.String(FieldTopic, value)
}

// WithTopicID sets the topicId field.
func WithTopicID(value digest.Hash) zap.Field {
	return zap.Stringer(FieldTopicID, value)
}

// WithAuthor sets the author field.
func WithAuthor(value common.Address) zap.Field {
	return zap.String(FieldAuthor, value.Hex())
}

// WithSequence sets the sequence field.
func WithSequence(value uint64) zap.Field {
	return zap.Uint64(FieldSequence, value)
}

// WithTxHash sets the txHash field.
func WithTxHash(value string) zap.Field {
	return zap.String(FieldTxHash, value)
}

// WithPayloadDigest sets the payloadDigest field.
func WithPayloadDigest(value digest.Hash) zap.Field {
	return zap.Stringer(FieldPayloadDigest, value)
}

// WithContextID sets the contextId field.
func WithContextID(value digest.Hash) zap.Field {
	return zap.Stringer(FieldContextID, value)
}

// WithBlock sets the block field.
func WithBlock(value uint64) zap.Field {
	return zap.Uint64(FieldBlock, value)
}

// WithBlockRange sets the fromBlock and toBlock fields.
func WithBlockRange(from, to uint64) zap.Field {
	return zap.Inline(blockRange{from: from, to: to})
}

// WithChainID sets the chainId field.
func WithChainID(value uint64) zap.Field {
	return zap.Uint64(FieldChainID, value)
}

// WithKernel sets the kernel field.
func WithKernel(value common.Address) zap.Field {
	return zap.String(FieldKernel, value.Hex())
}

// WithCID sets the cid field.
func WithCID(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldCID, value)
}

// WithBackend sets the backend field.
func WithBackend(value string) zap.Field {
	return zap.String(FieldBackend, value)
}

// WithAddress sets the address field, a listen or dial address.
func WithAddress(value string) zap.Field {
	return zap.String(FieldAddress, value)
}

// WithTotal sets the total field.
func WithTotal(value int) zap.Field {
	return zap.Int(FieldTotal, value)
}

// WithConfirmations sets the confirmations field.
func WithConfirmations(value uint64) zap.Field {
	return zap.Uint64(FieldConfirmations, value)
}

// WithState sets the state field.
func WithState(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldState, value)
}

// WithTool sets the tool field.
func WithTool(value string) zap.Field {
	return zap.String(FieldTool, value)
}

// WithSubscriber sets the subscriber field.
func WithSubscriber(value string) zap.Field {
	return zap.String(FieldSubscriber, value)
}

// WithLogSpec sets the logSpec field.
func WithLogSpec(value string) zap.Field {
	return zap.String(FieldLogSpec, value)
}

// WithAttempt sets the attempt field.
func WithAttempt(value int) zap.Field {
	return zap.Int(FieldAttempt, value)
}

// WithEventKey sets the event key field to a (txHash, logIndex) key.
func WithEventKey(value string) zap.Field {
	return zap.String(FieldEventKey, value)
}

// WithDuration sets the duration field.
func WithDuration(value time.Duration) zap.Field {
	return zap.Duration(FieldDuration, value)
}

// WithConfig sets the config field. The value of the field is
// encoded as JSON.
func WithConfig(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldConfig, value))
}

type blockRange struct {
	from, to uint64
}

func (r blockRange) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddUint64(FieldFromBlock, r.from)
	e.AddUint64(FieldToBlock, r.to)
	return nil
}

type jsonMarshaller struct {
	key string
	obj interface{}
}

func newJSONMarshaller(key string, value interface{}) *jsonMarshaller {
	return &jsonMarshaller{key: key, obj: value}
}

func (m *jsonMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	b, err := json.Marshal(m.obj)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	e.AddString(m.key, string(b))

	return nil
}
