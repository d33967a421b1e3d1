package clock

import (
	"fmt"
	"sync"
	"time"
)

// Timestamp is a Hybrid Logical Clock value: physical wall-clock
// milliseconds, a logical tie-breaking counter, and the client that stamped
// it. Ordering priority is Physical, then Logical, then ClientID.
type Timestamp struct {
	Physical uint64 `json:"physical"`
	Logical  uint32 `json:"logical"`
	ClientID ClientId `json:"client_id"`
}

// Compare returns -1 if t sorts before other, 1 if after, 0 if equal.
func (t Timestamp) Compare(other Timestamp) int {
	if t.Physical != other.Physical {
		if t.Physical < other.Physical {
			return -1
		}
		return 1
	}
	if t.Logical != other.Logical {
		if t.Logical < other.Logical {
			return -1
		}
		return 1
	}
	if t.ClientID != other.ClientID {
		if t.ClientID < other.ClientID {
			return -1
		}
		return 1
	}
	return 0
}

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool {
	return t.Compare(other) > 0
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d@%d", t.Physical, t.Logical, t.ClientID)
}

// HybridClock maintains one replica's monotonic HLC. now() and update() are
// the only two operations: every call is synchronous, so there is nothing
// here to await.
type HybridClock struct {
	mu       sync.Mutex
	latest   Timestamp
	clientID ClientId

	// wallClock is swappable in tests so HLC monotonicity can be asserted
	// without sleeping; production code leaves it nil and falls back to
	// time.Now.
	wallClock func() uint64
}

// NewHybridClock creates a clock for the given replica.
func NewHybridClock(clientID ClientId) *HybridClock {
	return &HybridClock{
		clientID: clientID,
		latest:   Timestamp{ClientID: clientID},
	}
}

func (c *HybridClock) wallMillis() uint64 {
	if c.wallClock != nil {
		return c.wallClock()
	}
	return uint64(time.Now().UnixMilli())
}

// Now returns the current timestamp, advancing the logical counter if
// physical time hasn't moved forward since the last call.
func (c *HybridClock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := c.wallMillis()
	if phys > c.latest.Physical {
		c.latest.Physical = phys
		c.latest.Logical = 0
	} else {
		c.latest.Logical++
	}
	c.latest.ClientID = c.clientID
	return c.latest
}

// Update folds a remote timestamp into the local clock, never regressing
// physical time and never producing a timestamp that does not strictly
// follow both the local state and the remote one.
func (c *HybridClock) Update(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := c.wallMillis()
	nextPhys := phys
	if c.latest.Physical > nextPhys {
		nextPhys = c.latest.Physical
	}
	if remote.Physical > nextPhys {
		nextPhys = remote.Physical
	}

	var nextLogical uint32
	switch {
	case nextPhys == c.latest.Physical && nextPhys == remote.Physical:
		nextLogical = c.latest.Logical
		if remote.Logical > nextLogical {
			nextLogical = remote.Logical
		}
		nextLogical++
	case nextPhys == c.latest.Physical:
		nextLogical = c.latest.Logical + 1
	case nextPhys == remote.Physical:
		nextLogical = remote.Logical + 1
	default:
		nextLogical = 0
	}

	c.latest = Timestamp{Physical: nextPhys, Logical: nextLogical, ClientID: c.clientID}
	return c.latest
}
