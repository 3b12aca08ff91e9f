package digest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/canon"
)

func TestKeccak256_KnownValues(t *testing.T) {
	// keccak256("") differs from sha3-256("") (a7ffc6f8...).
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256().Hex())
	assert.Equal(t, Keccak256([]byte("ab")), Keccak256([]byte("a"), []byte("b")))
}

func TestTopic_Heartbeat(t *testing.T) {
	want := "0x0369239ec8184f7268b30dc7a570c982ff4343b7b963c0b4bedb99c12fb62c65"
	for i := 0; i < 3; i++ {
		require.Equal(t, want, Topic("lumen.sys.heartbeat").Hex())
	}
}

func TestTopicChecked(t *testing.T) {
	h, err := TopicChecked("lumen.v0.demo")
	require.NoError(t, err)
	require.Equal(t, Topic("lumen.v0.demo"), h)

	_, err = TopicChecked("bad\xff")
	require.Error(t, err)
}

func TestParseHash(t *testing.T) {
	h := Topic("x")

	parsed, err := ParseHash(h.Hex())
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	parsed, err = ParseHash(h.Hex()[2:])
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHash("0x1234")
	require.Error(t, err)

	_, err = ParseHash("0x" + string(make([]byte, 64)))
	require.Error(t, err)
}

func TestHash_TextRoundTripInJSON(t *testing.T) {
	type doc struct {
		ID Hash `json:"id"`
	}
	in := doc{ID: Topic("lumen.v0.heartbeat")}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"0xb6b4ab451c0c9e4c85619fec3ac5500ea9e37695286f141f0a88fb747274cad9"}`, string(raw))

	var out doc
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestHash_Zero(t *testing.T) {
	require.True(t, Zero.IsZero())
	require.False(t, Topic("").IsZero())
	b := Zero.Bytes()
	b[0] = 1
	require.True(t, Zero.IsZero(), "Bytes must return a copy")
}

func TestConformanceVectors_Topics(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "testdata", "conformance", "topics.json"))
	require.NoError(t, err)

	var v struct {
		Topics []struct {
			Name string `json:"name"`
			ID   Hash   `json:"id"`
		} `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(raw, &v))
	require.NotEmpty(t, v.Topics)

	for _, tc := range v.Topics {
		assert.Equal(t, tc.ID, Topic(tc.Name), "topic %q", tc.Name)
	}
}

func TestConformanceVectors_PayloadDigests(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "testdata", "conformance", "payloads.json"))
	require.NoError(t, err)

	var v struct {
		Payloads []struct {
			Name      string `json:"name"`
			Input     string `json:"input"`
			Canonical string `json:"canonical"`
			Digest    Hash   `json:"digest"`
		} `json:"payloads"`
	}
	require.NoError(t, json.Unmarshal(raw, &v))
	require.NotEmpty(t, v.Payloads)

	for _, tc := range v.Payloads {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Digest, Payload([]byte(tc.Canonical)))

			c, err := canon.CanonicalizeJSON([]byte(tc.Input))
			require.NoError(t, err)
			require.Equal(t, tc.Digest, Payload(c))
		})
	}
}
