// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reputation tracks how much the network trusts each worker. The
// ledger converts consensus verdicts into scores, derives trust tiers from
// scores, and answers the two questions consensus asks: how many matching
// proofs does this set of contributors need, and is this worker banned.
package reputation

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/luxfi/cache"
	"github.com/luxfi/cache/lru"
	"github.com/luxfi/cache/metercacher"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/quorum/utils/timer/mockable"
)

const (
	// DefaultRedundancy is how many matching proofs a range needs before any
	// contributor's tier is known.
	DefaultRedundancy = 3

	agreedReward      = 10
	disagreedPenalty  = 50
	reversalPenalty   = agreedReward
	decayPerDay       = 1
	banMinimumSample  = 10
	banConsecutiveRun = 3

	recordCacheSize = 8192
)

var (
	ErrUnknownWorker   = errors.New("unknown worker")
	ErrVerdictApplied  = errors.New("verdict already applied")
	ErrVerdictNotFound = errors.New("no applied verdict")

	recordPrefix  = []byte("record")
	verdictPrefix = []byte("verdict")
)

// Ledger is the reputation store. It is backed by the caller's database and
// safe for concurrent use. Replicas that adjudicate independently reconcile
// through Merge, which only ever moves records forward.
type Ledger struct {
	lock    sync.RWMutex
	log     log.Logger
	clock   *mockable.Clock
	metrics *ledgerMetrics

	recordDB  database.Database
	verdictDB database.Database

	// recordCache caches deserialized records. A nil entry means the worker
	// is known to be absent from the database.
	recordCache cache.Cacher[ids.ShortID, *Record]
}

// New returns a ledger over db. The ledger owns the "record" and "verdict"
// buckets of db and nothing else.
func New(
	db database.Database,
	logger log.Logger,
	clock *mockable.Clock,
	registerer metric.Registerer,
) (*Ledger, error) {
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}

	reg, _ := registerer.(metric.Registry)
	recordCache, err := metercacher.New[ids.ShortID, *Record](
		"reputation_record_cache",
		reg,
		lru.NewCache[ids.ShortID, *Record](recordCacheSize),
	)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		log:         logger,
		clock:       clock,
		metrics:     metrics,
		recordDB:    prefixdb.New(recordPrefix, db),
		verdictDB:   prefixdb.New(verdictPrefix, db),
		recordCache: recordCache,
	}, nil
}

// RegisterIfAbsent creates a worker record at the Untrusted tier if none
// exists. Calling it again for a known worker is a no-op, except that a
// record created without a public key (for example by Merge) adopts the key.
func (l *Ledger) RegisterIfAbsent(worker ids.ShortID, publicKey []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	record, err := l.getRecord(worker)
	switch {
	case err == nil:
		if len(record.PublicKey) == 0 && len(publicKey) > 0 {
			record.PublicKey = slices.Clone(publicKey)
			return l.putRecord(record)
		}
		return nil
	case errors.Is(err, database.ErrNotFound):
	default:
		return err
	}

	record = &Record{
		Worker:     worker,
		PublicKey:  slices.Clone(publicKey),
		LastActive: l.clock.Time().Unix(),
	}
	if err := l.putRecord(record); err != nil {
		return err
	}

	l.metrics.registered.Inc()
	l.log.Debug("registered worker",
		log.Stringer("worker", worker),
	)
	return nil
}

// RequiredConfirmations returns how many matching proofs an assignment with
// the given contributors needs. The least trusted contributor sets the bar;
// a worker with no record counts as Untrusted. With no contributors at all
// the network default applies.
func (l *Ledger) RequiredConfirmations(workers []ids.ShortID) int {
	if len(workers) == 0 {
		return DefaultRedundancy
	}

	l.lock.RLock()
	defer l.lock.RUnlock()

	required := 0
	for _, worker := range workers {
		required = max(required, l.tier(worker).Confirmations())
	}
	return required
}

// SpotCheckRate returns the audit sampling rate for an assignment with the
// given contributors: the highest rate among them, so one new worker makes
// the whole result a candidate for re-verification.
func (l *Ledger) SpotCheckRate(workers []ids.ShortID) float64 {
	l.lock.RLock()
	defer l.lock.RUnlock()

	rate := 0.0
	for _, worker := range workers {
		rate = max(rate, l.tier(worker).SpotCheckRate())
	}
	return rate
}

// ApplyVerdict credits or penalizes a worker for its proof on an assignment.
// Each (worker, assignment) pair is adjudicated exactly once: repeated calls
// return ErrVerdictApplied and change nothing. Inactivity decay is applied
// lazily before the verdict itself.
func (l *Ledger) ApplyVerdict(worker ids.ShortID, assignment ids.ID, agreed bool) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	key := verdictKey(worker, assignment)
	switch _, err := l.verdictDB.Get(key); {
	case err == nil:
		return fmt.Errorf("%w: worker %s, assignment %s", ErrVerdictApplied, worker, assignment)
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	record, err := l.getRecord(worker)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
		}
		return err
	}

	now := l.clock.Time()
	l.decay(record, now)

	if agreed {
		record.Score = min(record.Score+agreedReward, ScoreCap)
		record.Correct++
		record.ConsecutiveIncorrect = 0
		l.metrics.agreed.Inc()
	} else {
		if record.Score > disagreedPenalty {
			record.Score -= disagreedPenalty
		} else {
			record.Score = 0
		}
		record.Incorrect++
		record.ConsecutiveIncorrect++
		l.metrics.disagreed.Inc()
	}
	l.checkBan(record)

	value := []byte{0}
	if agreed {
		value[0] = 1
	}
	if err := l.verdictDB.Put(key, value); err != nil {
		return err
	}
	if err := l.putRecord(record); err != nil {
		return err
	}

	l.log.Debug("applied verdict",
		log.Stringer("worker", worker),
		log.Stringer("assignment", assignment),
		log.Bool("agreed", agreed),
		log.Uint32("score", record.Score),
	)
	return nil
}

// ReverseVerdict withdraws a previously applied agreeing verdict, removing
// the credit it granted. Spot checks use this when a finalized result turns
// out to be contradicted: the pair becomes adjudicable again so the
// corrected verdict can be applied.
func (l *Ledger) ReverseVerdict(worker ids.ShortID, assignment ids.ID) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	key := verdictKey(worker, assignment)
	value, err := l.verdictDB.Get(key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: worker %s, assignment %s", ErrVerdictNotFound, worker, assignment)
		}
		return err
	}
	if len(value) == 0 || value[0] == 0 {
		return fmt.Errorf("%w: verdict for worker %s on %s was not positive",
			ErrVerdictNotFound, worker, assignment)
	}

	record, err := l.getRecord(worker)
	if err != nil {
		return err
	}

	if record.Score > reversalPenalty {
		record.Score -= reversalPenalty
	} else {
		record.Score = 0
	}
	if record.Correct > 0 {
		record.Correct--
	}

	if err := l.verdictDB.Delete(key); err != nil {
		return err
	}
	if err := l.putRecord(record); err != nil {
		return err
	}

	l.metrics.reversed.Inc()
	l.log.Info("reversed verdict",
		log.Stringer("worker", worker),
		log.Stringer("assignment", assignment),
	)
	return nil
}

// IsBanned reports whether the worker is banned. Unknown workers are not.
func (l *Ledger) IsBanned(worker ids.ShortID) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()

	record, err := l.getRecord(worker)
	return err == nil && record.Banned
}

// Tier returns the worker's trust tier. Unknown workers are Untrusted.
func (l *Ledger) Tier(worker ids.ShortID) Tier {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.tier(worker)
}

// Get returns a copy of the worker's record.
func (l *Ledger) Get(worker ids.ShortID) (*Record, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	record, err := l.getRecord(worker)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
		}
		return nil, err
	}
	copied := *record
	return &copied, nil
}

// Top returns up to n records ordered by score, strongest first. Ties break
// by total correct proofs, then by worker ID so the order is stable across
// replicas.
func (l *Ledger) Top(n int) ([]*Record, error) {
	records, err := l.List()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(records, func(a, b *Record) int {
		switch {
		case a.Score != b.Score:
			return int(b.Score) - int(a.Score)
		case a.Correct != b.Correct:
			if b.Correct > a.Correct {
				return 1
			}
			return -1
		default:
			return bytes.Compare(a.Worker[:], b.Worker[:])
		}
	})
	if n < len(records) {
		records = records[:n]
	}
	return records, nil
}

// List returns a copy of every record in the ledger.
func (l *Ledger) List() ([]*Record, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	it := l.recordDB.NewIterator()
	defer it.Release()

	var records []*Record
	for it.Next() {
		record := &Record{}
		if _, err := Codec.Unmarshal(it.Value(), record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, it.Error()
}

// Merge reconciles a remote replica's records with the local ledger. The
// merge is field-wise monotone, so applying the same snapshot twice, or two
// snapshots in either order, converges to the same state.
func (l *Ledger) Merge(remote []*Record) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	for _, rem := range remote {
		record, err := l.getRecord(rem.Worker)
		switch {
		case errors.Is(err, database.ErrNotFound):
			copied := *rem
			record = &copied
			l.metrics.registered.Inc()
		case err != nil:
			return err
		default:
			record.merge(rem)
		}

		l.checkBan(record)
		if err := l.putRecord(record); err != nil {
			return err
		}
	}
	return nil
}

// tier assumes at least a read lock is held.
func (l *Ledger) tier(worker ids.ShortID) Tier {
	record, err := l.getRecord(worker)
	if err != nil {
		return Untrusted
	}
	return record.Tier()
}

// decay subtracts one point per full day of inactivity, floored at zero, and
// marks the worker active now. Decay is lazy: it only runs when a verdict
// touches the record.
func (l *Ledger) decay(record *Record, now time.Time) {
	elapsed := now.Unix() - record.LastActive
	if days := elapsed / int64(24*time.Hour/time.Second); days > 0 {
		lost := uint32(min(days*decayPerDay, int64(record.Score)))
		record.Score -= lost
	}
	record.LastActive = now.Unix()
}

// checkBan applies the two ban rules: a sustained error rate above 10% once
// at least ten verdicts accumulated, or three disagreeing verdicts in a row.
// Bans are permanent here; lifting one is an administrative action outside
// the ledger.
func (l *Ledger) checkBan(record *Record) {
	if record.Banned {
		return
	}

	total := record.verdicts()
	rateBan := total >= banMinimumSample && record.Incorrect*10 > total
	runBan := record.ConsecutiveIncorrect >= banConsecutiveRun
	if !rateBan && !runBan {
		return
	}

	record.Banned = true
	l.metrics.banned.Inc()
	l.log.Warn("banned worker",
		log.Stringer("worker", record.Worker),
		log.Uint64("correct", record.Correct),
		log.Uint64("incorrect", record.Incorrect),
		log.Uint32("consecutiveIncorrect", record.ConsecutiveIncorrect),
	)
}

// getRecord assumes at least a read lock is held.
func (l *Ledger) getRecord(worker ids.ShortID) (*Record, error) {
	if record, ok := l.recordCache.Get(worker); ok {
		if record == nil {
			return nil, database.ErrNotFound
		}
		return record, nil
	}

	bytes, err := l.recordDB.Get(worker[:])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			l.recordCache.Put(worker, nil)
		}
		return nil, err
	}

	record := &Record{}
	if _, err := Codec.Unmarshal(bytes, record); err != nil {
		return nil, err
	}
	l.recordCache.Put(worker, record)
	return record, nil
}

// putRecord assumes the write lock is held.
func (l *Ledger) putRecord(record *Record) error {
	bytes, err := Codec.Marshal(CodecVersion, record)
	if err != nil {
		return fmt.Errorf("couldn't serialize record: %w", err)
	}
	if err := l.recordDB.Put(record.Worker[:], bytes); err != nil {
		return err
	}
	l.recordCache.Put(record.Worker, record)
	return nil
}

func verdictKey(worker ids.ShortID, assignment ids.ID) []byte {
	key := make([]byte, 0, len(worker)+len(assignment))
	key = append(key, worker[:]...)
	return append(key, assignment[:]...)
}
