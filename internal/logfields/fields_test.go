package logfields

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/digest"
)

type mockWriter struct {
	*bytes.Buffer
}

func (m *mockWriter) Sync() error {
	return nil
}

func newMockWriter() *mockWriter {
	return &mockWriter{Buffer: bytes.NewBuffer(nil)}
}

type logData struct {
	Level  string `json:"level"`
	Logger string `json:"logger"`
	Msg    string `json:"msg"`
	Error  string `json:"error"`

	Topic         string `json:"topic"`
	TopicID       string `json:"topicId"`
	Author        string `json:"author"`
	Sequence      uint64 `json:"sequence"`
	TxHash        string `json:"txHash"`
	PayloadDigest string `json:"payloadDigest"`
	ContextID     string `json:"contextId"`
	Block         uint64 `json:"block"`
	FromBlock     uint64 `json:"fromBlock"`
	ToBlock       uint64 `json:"toBlock"`
	ChainID       uint64 `json:"chainId"`
	Kernel        string `json:"kernel"`
	CID           string `json:"cid"`
	Backend       string `json:"backend"`
	Address       string `json:"address"`
	Total         int    `json:"total"`
	Confirmations uint64 `json:"confirmations"`
	Tool          string `json:"tool"`
	Subscriber    string `json:"subscriber"`
	LogSpec       string `json:"logSpec"`
	Config        string `json:"config"`
	Attempt       int    `json:"attempt"`
}

func TestStandardFields(t *testing.T) {
	const module = "test_module"

	stdOut := newMockWriter()
	logger := log.New(module, log.WithStdOut(stdOut), log.WithEncoding(log.JSON))

	author := common.HexToAddress("0x52078D914CbccD78EE856b37b438818afaB3899c")
	topicID := digest.Topic("lumen.sys.heartbeat")
	pd := digest.Payload([]byte("{}"))
	var id cid.Cid = cidutil.CID([]byte("{}"))

	logger.Info("Some message",
		WithTopic("lumen.sys.heartbeat"), WithTopicID(topicID), WithAuthor(author),
		WithSequence(7), WithTxHash("0xabc"), WithPayloadDigest(pd), WithContextID(pd),
		WithBlock(12), WithBlockRange(10, 20), WithChainID(8453), WithKernel(author),
		WithCID(id), WithBackend("localfs"), WithAddress(":8080"), WithTotal(3),
		WithConfirmations(2), WithTool("lumen_heartbeat"), WithSubscriber("s1"),
		WithLogSpec("relay=DEBUG:INFO"), WithConfig(map[string]int{"a": 1}), WithAttempt(4),
		log.WithError(errors.New("some error")),
	)

	var l logData
	require.NoError(t, json.Unmarshal(stdOut.Bytes(), &l))

	require.Equal(t, "Some message", l.Msg)
	require.Equal(t, "some error", l.Error)
	require.Equal(t, "lumen.sys.heartbeat", l.Topic)
	require.Equal(t, topicID.Hex(), l.TopicID)
	require.Equal(t, author.Hex(), l.Author)
	require.Equal(t, uint64(7), l.Sequence)
	require.Equal(t, "0xabc", l.TxHash)
	require.Equal(t, pd.Hex(), l.PayloadDigest)
	require.Equal(t, pd.Hex(), l.ContextID)
	require.Equal(t, uint64(12), l.Block)
	require.Equal(t, uint64(10), l.FromBlock)
	require.Equal(t, uint64(20), l.ToBlock)
	require.Equal(t, uint64(8453), l.ChainID)
	require.Equal(t, author.Hex(), l.Kernel)
	require.Equal(t, id.String(), l.CID)
	require.Equal(t, "localfs", l.Backend)
	require.Equal(t, ":8080", l.Address)
	require.Equal(t, 3, l.Total)
	require.Equal(t, uint64(2), l.Confirmations)
	require.Equal(t, "lumen_heartbeat", l.Tool)
	require.Equal(t, "s1", l.Subscriber)
	require.Equal(t, "relay=DEBUG:INFO", l.LogSpec)
	require.Equal(t, `{"a":1}`, l.Config)
	require.Equal(t, 4, l.Attempt)
}
