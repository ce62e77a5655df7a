package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ============================================================================
// Snowflake ID generator
// ============================================================================
//
//   0 - 41 bit timestamp - 10 bit worker id - 12 bit sequence
//   |   |                  |                  |
//   |   |                  |                  +-- sequence within a millisecond (0-4095)
//   |   |                  +-- worker id (0-1023)
//   |   +-- milliseconds since epoch (about 69 years)
//   +-- sign bit, always 0
//
// IDs are unique per worker and roughly time ordered, which keeps the
// collections sortable by id.
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Record prefixes.
const (
	PrefixTransfer          = "TRF"
	PrefixTransaction       = "TXN"
	PrefixBankFeed          = "BF"
	PrefixReconciliationLog = "REC"
	PrefixAccount           = "ACC"
	PrefixOutboxMessage     = "MSG"
)

// Snowflake generates ids for one worker.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	initOnce         sync.Once
)

// NewSnowflake returns a generator for workerID.
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("idgen: worker id must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init sets up the default generator. Only the first valid call has any effect.
func Init(workerID int64) error {
	generator, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	initOnce.Do(func() {
		defaultGenerator = generator
	})
	return nil
}

// NextID returns the next id of the default generator, set up with worker 1
// if Init was never called.
func NextID() int64 {
	_ = Init(1)
	return defaultGenerator.Generate()
}

// Generate returns the next id.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now <= s.timestamp {
		// same millisecond, or the clock stepped back: stay on the last timestamp
		now = s.timestamp
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// New returns prefix followed by the next snowflake id, e.g. TXN123456789012.
func New(prefix string) string {
	return prefix + strconv.FormatInt(NextID(), 10)
}

func TransferID() string          { return New(PrefixTransfer) }
func TransactionID() string       { return New(PrefixTransaction) }
func BankFeedID() string          { return New(PrefixBankFeed) }
func ReconciliationLogID() string { return New(PrefixReconciliationLog) }
func AccountID() string           { return New(PrefixAccount) }
func OutboxMessageID() string     { return New(PrefixOutboxMessage) }
