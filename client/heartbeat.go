package client

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/ledger"
	"lumen.dev/sdk/topics"
)

// HeartbeatVersion is the payload schema version of heartbeats.
const HeartbeatVersion = "0.1"

// DefaultHeartbeatNote is the note used when none is given.
const DefaultHeartbeatNote = "alive"

// HeartbeatPayload builds the heartbeat payload for agent at unix time ts.
func HeartbeatPayload(agent common.Address, ts int64, note string) canon.Map {
	return canon.Map{
		"v":     canon.String(HeartbeatVersion),
		"kind":  canon.String("heartbeat"),
		"agent": canon.String(agent.Hex()),
		"ts":    canon.Int(ts),
		"note":  canon.String(note),
	}
}

// Heartbeat writes a liveness record on the heartbeat topic.
func (c *Client) Heartbeat(ctx context.Context, note string) (*Result, error) {
	if note == "" {
		note = DefaultHeartbeatNote
	}
	return c.Write(ctx, topics.Heartbeat, HeartbeatPayload(c.author, c.now().Unix(), note))
}

// Beat reports the outcome of one pacemaker heartbeat.
type Beat struct {
	N      int
	Result *Result
	Err    error
}

// Pacemaker writes a heartbeat every interval until ctx is done or count
// beats have been attempted (count <= 0 means unbounded). A failed beat is
// reported and the loop carries on. The first beat is immediate.
func (c *Client) Pacemaker(ctx context.Context, interval time.Duration, count int, note string, onBeat func(Beat)) error {
	if !c.CanWrite() {
		return ledger.ErrCredentialRequired
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; count <= 0 || n <= count; n++ {
		res, err := c.Heartbeat(ctx, note)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Heartbeat failed; will retry on next tick", logfields.WithAttempt(n), log.WithError(err))
		}
		if onBeat != nil {
			onBeat(Beat{N: n, Result: res, Err: err})
		}

		if count > 0 && n == count {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
