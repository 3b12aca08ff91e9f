package casregistry

// Usage restricts which programs should accept a given backend.
type Usage uint8

const (
	// UsageCLI marks backends available to client programs (lumen).
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends a CAS daemon can serve (lumen-casd).
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
