package ids

import (
	"fmt"
	"strings"
	"sync"

	"bengkelku/internal/clock"

	"github.com/google/uuid"
)

const (
	PrefixBooking = "BK"
	PrefixVehicle = "vehicle_"
	PrefixUser    = "user_"
)

// Generator hands out identifiers that are unique for the life of the process.
type Generator interface {
	New(prefix string) string
}

// UUIDGenerator builds ids from the last six digits of the millisecond clock followed by
// eight hex characters of a random UUID, e.g. BK482913A1F03C9E.
type UUIDGenerator struct {
	clock clock.Clock
}

func NewUUIDGenerator(c clock.Clock) *UUIDGenerator {
	if c == nil {
		c = clock.Real{}
	}
	return &UUIDGenerator{clock: c}
}

func (g *UUIDGenerator) New(prefix string) string {
	millis := fmt.Sprintf("%06d", g.clock.Now().UnixMilli()%1_000_000)
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return prefix + millis + suffix
}

// Sequence yields prefix1, prefix2, ... and is meant for deterministic tests.
type Sequence struct {
	mu sync.Mutex
	n  int
}

func (s *Sequence) New(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s%d", prefix, s.n)
}
