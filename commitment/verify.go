package commitment

import (
	"bytes"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/digest"
)

// Verify re-derives the topic identifier and payload digest from topic and
// payload and compares them with rec.
func Verify(rec Record, topic string, payload canon.Value) error {
	b, err := canon.Canonicalize(payload)
	if err != nil {
		return err
	}
	return verifyDigests(rec, topic, b)
}

// VerifyCanonical is Verify for payloads already in serialized form. The
// bytes must be canonical JSON; anything else returns ErrNotCanonical even
// when the digest matches.
func VerifyCanonical(rec Record, topic string, canonical []byte) error {
	b, err := canon.CanonicalizeJSON(canonical)
	if err != nil {
		return err
	}
	if !bytes.Equal(b, canonical) {
		return ErrNotCanonical
	}
	return verifyDigests(rec, topic, canonical)
}

func verifyDigests(rec Record, topic string, canonical []byte) error {
	if want := digest.Topic(topic); want != rec.TopicID {
		return &MismatchError{Field: "topic", Want: want, Got: rec.TopicID}
	}
	if want := digest.Payload(canonical); want != rec.PayloadDigest {
		return &MismatchError{Field: "payload digest", Want: want, Got: rec.PayloadDigest}
	}
	return nil
}
