package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"healthvault/internal/domain"
)

// MaxScanSessions caps the nextSessionId a scan accepts from the ledger.
const MaxScanSessions = 1 << 20

// ErrNoCreationEvent is the skip reason for a session whose creation log
// cannot be found.
var ErrNoCreationEvent = errors.New("no SessionCreated event")

// ScanResult is one pass over every id the ledger has allocated.
type ScanResult struct {
	// Sessions holds every record read successfully, by descending id.
	Sessions []domain.Session
	// Skipped lists ids whose read failed, by descending id.
	Skipped []domain.SkippedSession
	// Scanned is the exclusive upper bound that was read (nextSessionId).
	Scanned uint64
}

// Scan reads sessions 0 .. nextSessionId-1 with at most concurrency reads in
// flight. A failed read skips that id; only a failure to read the upper bound
// or cancellation of ctx aborts the scan. An upper bound above MaxScanSessions
// is a ProtocolError.
func Scan(ctx context.Context, ledger domain.SessionLedger, concurrency int) (*ScanResult, error) {
	next, err := ledger.NextSessionID(ctx)
	if err != nil {
		return nil, &domain.ChainError{Op: "read next session id", Err: err}
	}
	if next > MaxScanSessions {
		return nil, &domain.ProtocolError{
			Op:     "read next session id",
			Reason: fmt.Sprintf("ledger reports %d sessions, scan limit is %d", next, MaxScanSessions),
		}
	}
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}

	type slot struct {
		session domain.Session
		err     error
	}
	slots := make([]slot, next)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := uint64(0); i < next; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			id := domain.SessionID(i)
			sess, err := ledger.Session(ctx, id)
			sess.ID = id
			slots[i] = slot{session: sess, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &ScanResult{Scanned: next}
	for i := next; i > 0; i-- {
		sl := slots[i-1]
		if sl.err != nil {
			res.Skipped = append(res.Skipped, domain.SkippedSession{ID: domain.SessionID(i - 1), Reason: sl.err})
			continue
		}
		res.Sessions = append(res.Sessions, sl.session)
	}
	return res, nil
}

// FetchMySessions lists the sessions owned by caller, newest first.
//
// The ledger has no owner index, so this reads every session ever created.
// Reads that fail are reported in Listing.Skipped rather than failing the
// call. A missing creation time leaves CreatedAt nil.
func (s *Service) FetchMySessions(ctx context.Context, caller domain.Caller) (*domain.Listing, error) {
	start := time.Now()
	scan, err := Scan(ctx, s.ledger, s.cfg.ScanConcurrency)
	if err != nil {
		return nil, err
	}

	var mine []domain.Session
	for _, sess := range scan.Sessions {
		if sess.Exists && sess.Owner == caller.Address {
			mine = append(mine, sess)
		}
	}

	summaries := make([]domain.SessionSummary, len(mine))
	var g errgroup.Group
	g.SetLimit(s.cfg.ScanConcurrency)
	for i, sess := range mine {
		g.Go(func() error {
			summaries[i] = domain.SessionSummary{ID: sess.ID, ResultReady: sess.ResultReady}
			ts, err := s.CreatedAt(ctx, sess.ID)
			if err != nil {
				s.log.WithField("session", sess.ID).WithError(err).Debug("creation time unavailable")
				return nil
			}
			summaries[i].CreatedAt = &ts
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(summaries, func(a, b int) bool { return summaries[a].ID > summaries[b].ID })

	for _, sk := range scan.Skipped {
		s.log.WithField("session", sk.ID).WithError(sk.Reason).Warn("session skipped during scan")
	}
	s.log.WithFields(logrus.Fields{
		"owner":   caller.Address.Hex(),
		"scanned": scan.Scanned,
		"mine":    len(summaries),
		"skipped": len(scan.Skipped),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("session scan complete")

	return &domain.Listing{
		Sessions: summaries,
		Skipped:  scan.Skipped,
		Scanned:  scan.Scanned,
	}, nil
}

// CreatedAt resolves the creation time of id from its SessionCreated log.
func (s *Service) CreatedAt(ctx context.Context, id domain.SessionID) (time.Time, error) {
	events, err := s.ledger.SessionCreatedEvents(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	for _, ev := range events {
		if ev.Removed {
			continue
		}
		return s.ledger.BlockTime(ctx, ev.BlockNumber)
	}
	return time.Time{}, ErrNoCreationEvent
}
