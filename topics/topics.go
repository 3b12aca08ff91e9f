// Package topics catalogues the well-known lumen topic names and their ids.
package topics

import (
	"sort"

	"lumen.dev/sdk/digest"
)

// Well-known topic names.
const (
	Heartbeat   = "lumen.sys.heartbeat"
	JobRequest  = "lumen.v0.job.request"
	JobReceipt  = "lumen.v0.job.receipt"
	HeartbeatV0 = "lumen.v0.heartbeat"
	Demo        = "lumen.v0.demo"
)

// Topic pairs a name with its id.
type Topic struct {
	Name string      `json:"name"`
	ID   digest.Hash `json:"id"`
}

var known = func() map[digest.Hash]string {
	m := make(map[digest.Hash]string)
	for _, name := range []string{Heartbeat, JobRequest, JobReceipt, HeartbeatV0, Demo} {
		m[digest.Topic(name)] = name
	}
	return m
}()

// ID returns the topic id of name.
func ID(name string) digest.Hash {
	return digest.Topic(name)
}

// Name returns the catalogued name for id.
func Name(id digest.Hash) (string, bool) {
	name, ok := known[id]
	return name, ok
}

// All returns the catalogue sorted by name.
func All() []Topic {
	out := make([]Topic, 0, len(known))
	for id, name := range known {
		out = append(out, Topic{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
