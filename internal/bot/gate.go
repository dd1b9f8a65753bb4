package bot

import "log"

// Gate is the single-owner authorization predicate. Every inbound event
// passes through it before any other processing.
type Gate struct {
	ownerID int64
}

func NewGate(ownerID int64) *Gate {
	return &Gate{ownerID: ownerID}
}

// Allow reports whether the actor is the configured owner. Denials are
// logged as security-relevant events.
func (g *Gate) Allow(actorID int64) bool {
	if actorID == g.ownerID {
		return true
	}
	log.Printf("access denied: actor=%d is not the configured owner", actorID)
	return false
}
