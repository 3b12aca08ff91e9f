// Command vector_gen recomputes the derived fields of the conformance vectors
// under testdata/conformance from their inputs: canonical forms and digests of
// payloads, topic ids, and record wire encodings, ids and calldata.
//
// Run from the repository root:
//
//	go run ./internal/tools/vector_gen
//	go run ./internal/tools/vector_gen --check
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/ledger/kernel"
)

type payloadVectors struct {
	Payloads []struct {
		Name      string `json:"name"`
		Input     string `json:"input"`
		Canonical string `json:"canonical"`
		Digest    string `json:"digest"`
	} `json:"payloads"`
	Rejects []struct {
		Name  string `json:"name"`
		Input string `json:"input"`
	} `json:"rejects"`
}

type topicVectors struct {
	Topics []struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"topics"`
}

type commitmentVectors struct {
	Commitments []struct {
		Name     string `json:"name"`
		Topic    string `json:"topic"`
		Payload  string `json:"payload"`
		Sequence uint64 `json:"sequence"`
		Wire     string `json:"wire"`
		RecordID string `json:"record_id"`
		Calldata string `json:"calldata"`
	} `json:"commitments"`
}

// vectorAuthor is not part of the record; any address works.
var vectorAuthor = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

func main() {
	fs := pflag.NewFlagSet("vector_gen", pflag.ExitOnError)
	dir := fs.String("dir", filepath.Join("testdata", "conformance"), "vector directory")
	check := fs.Bool("check", false, "fail if any file is out of date instead of rewriting it")
	_ = fs.Parse(os.Args[1:])

	stale := 0
	for name, gen := range map[string]func([]byte) (any, error){
		"payloads.json":    genPayloads,
		"topics.json":      genTopics,
		"commitments.json": genCommitments,
	} {
		path := filepath.Join(*dir, name)
		changed, err := regenerate(path, gen, *check)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		if changed {
			stale++
			fmt.Fprintf(os.Stderr, "%s: out of date\n", path)
		}
	}

	if *check && stale > 0 {
		os.Exit(1)
	}
}

func regenerate(path string, gen func([]byte) (any, error), check bool) (bool, error) {
	old, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	v, err := gen(old)
	if err != nil {
		return false, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return false, err
	}

	if bytes.Equal(buf.Bytes(), old) {
		return false, nil
	}
	if check {
		return true, nil
	}
	return true, os.WriteFile(path, buf.Bytes(), 0o644)
}

func genPayloads(raw []byte) (any, error) {
	var v payloadVectors
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	for i := range v.Payloads {
		p := &v.Payloads[i]
		b, err := canon.CanonicalizeJSON([]byte(p.Input))
		if err != nil {
			return nil, fmt.Errorf("payload %s: %w", p.Name, err)
		}
		p.Canonical = string(b)
		p.Digest = digest.Payload(b).Hex()
	}
	for _, r := range v.Rejects {
		if _, err := canon.CanonicalizeJSON([]byte(r.Input)); err == nil {
			return nil, fmt.Errorf("reject %s: input was accepted", r.Name)
		}
	}
	return v, nil
}

func genTopics(raw []byte) (any, error) {
	var v topicVectors
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	for i := range v.Topics {
		v.Topics[i].ID = digest.Topic(v.Topics[i].Name).Hex()
	}
	return v, nil
}

func genCommitments(raw []byte) (any, error) {
	var v commitmentVectors
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	for i := range v.Commitments {
		c := &v.Commitments[i]

		canonical, err := canon.CanonicalizeJSON([]byte(c.Payload))
		if err != nil {
			return nil, fmt.Errorf("commitment %s: %w", c.Name, err)
		}
		if string(canonical) != c.Payload {
			return nil, fmt.Errorf("commitment %s: payload is not canonical", c.Name)
		}

		seq, err := commitment.AcquireSequence(context.Background(), fixedSequence(c.Sequence), vectorAuthor)
		if err != nil {
			return nil, err
		}
		rec, err := commitment.Build(vectorAuthor, digest.Topic(c.Topic), digest.Payload(canonical), seq)
		if err != nil {
			return nil, fmt.Errorf("commitment %s: %w", c.Name, err)
		}

		wire, err := rec.MarshalBinary()
		if err != nil {
			return nil, err
		}
		calldata, err := kernel.PackWriteContext(rec)
		if err != nil {
			return nil, err
		}

		c.Wire = hex.EncodeToString(wire)
		c.RecordID = rec.ID().Hex()
		c.Calldata = hex.EncodeToString(calldata)
	}
	return v, nil
}

func fixedSequence(n uint64) commitment.SequenceSource {
	return commitment.SequenceSourceFunc(func(context.Context, common.Address) (uint64, error) {
		return n, nil
	})
}
