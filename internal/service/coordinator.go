package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jask/ledgermatch/internal/database"
	"github.com/jask/ledgermatch/internal/database/repository"
)

// Coordinator owns the resolution of unmatched records. It is the only
// mutator of link_id; every write goes through one transaction containing
// the backup snapshot, the link update and the audit insert.
type Coordinator struct {
	DB        *sql.DB
	Records   *repository.RecordRepo
	Decisions *repository.DecisionRepo
	Audit     *repository.AuditRepo
	Runs      *repository.RunRepo

	Classifier *SequenceClassifier

	Actor      string
	Workers    int
	MaxRetries uint

	// SequenceWindowDays returns the same-amount cluster window per source kind.
	SequenceWindowDays func(kind repository.SourceKind) int
}

// RunParams selects the scope of one reconciliation run.
type RunParams struct {
	Source     repository.SourceKind
	Target     repository.SourceKind
	AccountRef string
	Scorer     ScorerConfig
	DryRun     bool
}

// Resolution is the in-memory outcome for one source record.
type Resolution struct {
	Record     repository.LedgerRecord
	Outcome    repository.Outcome
	LinkID     string
	Score      int
	Reason     string
	Candidates []MatchCandidate
}

// RunResult summarizes one run per terminal state.
type RunResult struct {
	RunID             string
	DryRun            bool
	SourceRecords     int
	TargetRecords     int
	AutoLinked        int
	Ambiguous         int
	Unmatched         int
	RejectedDuplicate int
	Resolutions       []Resolution
}

// proposal carries the concurrently-computed scoring for one source record.
// Scored candidates are re-validated by the writer against the live index
// before anything is committed.
type proposal struct {
	pos    int
	record repository.LedgerRecord
	scored []MatchCandidate
}

// Resolve runs one reconciliation pass. Concurrent runs over the same
// (source, target, account) triple are excluded by an advisory lock. Scoring
// fans out over a worker pool; all index mutation and every write happen on
// this goroutine, preserving the no-double-link invariant.
func (c *Coordinator) Resolve(ctx context.Context, p RunParams) (*RunResult, error) {
	runID := uuid.NewString()
	lockKey := repository.LockKey(p.Source, p.Target, p.AccountRef)
	if err := c.Runs.AcquireLock(ctx, lockKey, runID); err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", lockKey, err)
	}
	defer func() {
		if err := c.Runs.ReleaseLock(context.WithoutCancel(ctx), lockKey, runID); err != nil {
			log.Printf("warn: release run lock %s: %v", lockKey, err)
		}
	}()

	run := repository.Run{ID: runID, SourceKind: p.Source, TargetKind: p.Target, DryRun: p.DryRun}
	if p.AccountRef != "" {
		run.AccountRef = &p.AccountRef
	}
	if err := c.Runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	targets, err := c.Records.Unlinked(ctx, p.Target, p.AccountRef)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	sources, err := c.Records.Unlinked(ctx, p.Source, p.AccountRef)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	idx := BuildIndex(targets)
	res := &RunResult{RunID: runID, DryRun: p.DryRun, SourceRecords: len(sources), TargetRecords: len(targets)}

	proposals := c.scoreAll(ctx, sources, idx, p.Scorer)

	rejectedTargets := make(map[string]bool)
	for _, prop := range proposals {
		if err := ctx.Err(); err != nil {
			// interruptible between records: committed decisions stay valid
			return res, err
		}
		resolution := c.resolveOne(ctx, prop, idx, p, rejectedTargets, res, runID)
		res.Resolutions = append(res.Resolutions, resolution)
		switch resolution.Outcome {
		case repository.OutcomeAutoLinked:
			res.AutoLinked++
		case repository.OutcomeAmbiguous:
			res.Ambiguous++
		case repository.OutcomeUnmatched:
			res.Unmatched++
		}
	}

	run.AutoLinked = res.AutoLinked
	run.Ambiguous = res.Ambiguous
	run.Unmatched = res.Unmatched
	run.RejectedDuplicate = res.RejectedDuplicate
	if err := c.Runs.Finish(ctx, run); err != nil {
		log.Printf("warn: finish run %s: %v", runID, err)
	}
	return res, nil
}

// scoreAll computes candidate scores for every source record across a worker
// pool. The index is read-only during this phase; lookups are pure.
func (c *Coordinator) scoreAll(ctx context.Context, sources []repository.LedgerRecord, idx *CandidateIndex, cfg ScorerConfig) []proposal {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	out := make([]proposal, len(sources))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec := sources[i]
				cands := idx.Lookup(rec.AmountCents, rec.EventDate, cfg.FallbackMaxDays, cfg.AmountToleranceCents, "")
				out[i] = proposal{pos: i, record: rec, scored: Score(&rec, cands, cfg)}
			}
		}()
	}
feed:
	for i := range sources {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

// resolveOne applies the decision for one source record. Runs strictly
// serially; this is the single writer.
func (c *Coordinator) resolveOne(ctx context.Context, prop proposal, idx *CandidateIndex, p RunParams,
	rejectedTargets map[string]bool, res *RunResult, runID string) Resolution {

	rec := prop.record

	// same-amount cluster handling before any link decision
	seqWindow := 3
	if c.SequenceWindowDays != nil {
		seqWindow = c.SequenceWindowDays(p.Target)
	}
	cluster := idx.Lookup(rec.AmountCents, rec.EventDate, seqWindow, 0, "")
	if len(cluster) >= 2 && c.Classifier != nil {
		group := c.Classifier.Classify(cluster)
		switch group.Tag {
		case TagDuplicateImport:
			for _, member := range group.Members {
				if member.ID == group.Keep.ID || rejectedTargets[member.ID] {
					continue
				}
				c.persistRejectedDuplicate(ctx, p, runID, member, group.Keep)
				idx.Remove(member.ID)
				rejectedTargets[member.ID] = true
				res.RejectedDuplicate++
			}
		case TagUnknownCluster:
			resolution := Resolution{Record: rec, Outcome: repository.OutcomeAmbiguous,
				Reason: "unknown same-amount cluster, manual review", Candidates: prop.scored}
			c.persistDecision(ctx, p, runID, resolution)
			return resolution
		case TagNSFRetrySequence:
			// legitimate repeat: every member stays and links independently
		}
	}

	// drop candidates consumed earlier in this run; rescore live if any were
	scored := prop.scored
	stale := false
	for _, mc := range scored {
		if !idx.Contains(mc.Record.ID) {
			stale = true
			break
		}
	}
	if stale {
		cands := idx.Lookup(rec.AmountCents, rec.EventDate, p.Scorer.FallbackMaxDays, p.Scorer.AmountToleranceCents, "")
		scored = Score(&rec, cands, p.Scorer)
	}

	resolution := c.decide(rec, scored)
	if resolution.Outcome == repository.OutcomeAutoLinked {
		if err := c.commitLink(ctx, p, runID, &resolution); err != nil {
			log.Printf("warn: link %s: %v", rec.ID, err)
			resolution = Resolution{Record: rec, Outcome: repository.OutcomeUnmatched,
				Reason: fmt.Sprintf("store failure: %v", err), Candidates: scored}
		} else {
			idx.Remove(resolution.Candidates[0].Record.ID)
		}
	}
	if resolution.Outcome != repository.OutcomeAutoLinked {
		c.persistDecision(ctx, p, runID, resolution)
	}
	return resolution
}

// decide turns scored candidates into a terminal outcome. Ties at the top
// score always escalate; low-confidence fallback matches are never linked
// without a human.
func (c *Coordinator) decide(rec repository.LedgerRecord, scored []MatchCandidate) Resolution {
	if len(scored) == 0 {
		return Resolution{Record: rec, Outcome: repository.OutcomeUnmatched, Reason: "no candidates"}
	}
	if Tied(scored) {
		return Resolution{Record: rec, Outcome: repository.OutcomeAmbiguous,
			Reason: fmt.Sprintf("%d candidates tied at score %d", tieCount(scored), scored[0].Score),
			Candidates: scored}
	}
	best := scored[0]
	if best.LowConfidence {
		return Resolution{Record: rec, Outcome: repository.OutcomeAmbiguous,
			Reason: "low-confidence fallback match, manual review", Candidates: scored}
	}
	return Resolution{Record: rec, Outcome: repository.OutcomeAutoLinked, Score: best.Score,
		Reason: joinReasons(best.Reasons), Candidates: scored}
}

// commitLink performs the atomic backup + link + decision + audit write with
// bounded retry on transient store failures. Dry-run computes everything and
// commits nothing.
func (c *Coordinator) commitLink(ctx context.Context, p RunParams, runID string, r *Resolution) error {
	target := r.Candidates[0].Record
	linkID := uuid.NewString()
	r.LinkID = linkID

	if p.DryRun {
		return nil
	}

	op := func() error {
		err := database.WithTx(c.DB, func(tx *sql.Tx) error {
			backupID, err := c.writeBackups(ctx, tx, runID, &r.Record, target)
			if err != nil {
				return err
			}
			for _, id := range []string{r.Record.ID, target.ID} {
				ok, err := c.Records.SetLink(ctx, tx, id, linkID)
				if err != nil {
					return err
				}
				if !ok {
					return backoff.Permanent(&IdempotencyViolationError{RecordID: id, WantedLink: linkID})
				}
			}
			d := repository.MatchDecision{
				ID: uuid.NewString(), RunID: runID, RecordID: r.Record.ID,
				CounterpartID: &target.ID, Outcome: repository.OutcomeAutoLinked,
				LinkID: &linkID, Score: &r.Score, Reason: r.Reason,
			}
			if err := c.Decisions.Insert(ctx, tx, d); err != nil {
				return err
			}
			return c.Audit.Append(ctx, tx, repository.AuditEntry{
				RunID: runID, Actor: c.Actor,
				RecordIDs: []string{r.Record.ID, target.ID},
				Decision:  string(repository.OutcomeAutoLinked),
				Score:     &r.Score, Reason: r.Reason, BackupID: &backupID,
			})
		})
		if err != nil && !database.IsBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.MaxRetries)), ctx))
	if database.IsBusy(err) {
		return &TransientStoreError{Op: "link", Err: err}
	}
	return err
}

func (c *Coordinator) writeBackups(ctx context.Context, tx *sql.Tx, runID string, records ...*repository.LedgerRecord) (string, error) {
	backupID := uuid.NewString()
	for i, rec := range records {
		snap, err := json.Marshal(rec)
		if err != nil {
			return "", err
		}
		b := repository.RecordBackup{
			ID: backupID, RunID: runID, RecordID: rec.ID, SnapshotJSON: string(snap),
		}
		if i > 0 {
			b.ID = backupID + "-" + fmt.Sprint(i)
		}
		if err := c.Decisions.InsertBackup(ctx, tx, b); err != nil {
			return "", err
		}
	}
	return backupID, nil
}

// persistDecision stores a non-linking terminal state. These are revisited on
// the next run and produce no audit rows: nothing was mutated.
func (c *Coordinator) persistDecision(ctx context.Context, p RunParams, runID string, r Resolution) {
	if p.DryRun {
		return
	}
	d := repository.MatchDecision{
		ID: uuid.NewString(), RunID: runID, RecordID: r.Record.ID,
		Outcome: r.Outcome, Reason: r.Reason,
	}
	if len(r.Candidates) > 0 {
		if js := marshalCandidates(r.Candidates); js != "" {
			d.CandidatesJSON = &js
		}
	}
	err := database.WithTx(c.DB, func(tx *sql.Tx) error {
		return c.Decisions.Insert(ctx, tx, d)
	})
	if err != nil {
		log.Printf("warn: persist decision for %s: %v", r.Record.ID, err)
	}
}

// persistRejectedDuplicate records the routing of a redundant import copy.
// The row itself is untouched: deletion needs explicit operator confirmation.
func (c *Coordinator) persistRejectedDuplicate(ctx context.Context, p RunParams, runID string,
	member, keep *repository.LedgerRecord) {
	if p.DryRun {
		return
	}
	d := repository.MatchDecision{
		ID: uuid.NewString(), RunID: runID, RecordID: member.ID,
		CounterpartID: &keep.ID, Outcome: repository.OutcomeRejectedDuplicate,
		Reason: fmt.Sprintf("duplicate import of %s, first import kept", keep.SourceID),
	}
	err := database.WithTx(c.DB, func(tx *sql.Tx) error {
		return c.Decisions.Insert(ctx, tx, d)
	})
	if err != nil {
		log.Printf("warn: persist duplicate rejection for %s: %v", member.ID, err)
	}
}

// candidateSnapshot is the persisted shape of an ambiguous candidate set.
type candidateSnapshot struct {
	RecordID string   `json:"record_id"`
	SourceID string   `json:"source_id"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
}

func marshalCandidates(cands []MatchCandidate) string {
	snaps := make([]candidateSnapshot, 0, len(cands))
	for _, mc := range cands {
		snaps = append(snaps, candidateSnapshot{
			RecordID: mc.Record.ID, SourceID: mc.Record.SourceID,
			Score: mc.Score, Reasons: mc.Reasons,
		})
	}
	js, err := json.Marshal(snaps)
	if err != nil {
		return ""
	}
	return string(js)
}

func tieCount(scored []MatchCandidate) int {
	n := 1
	for i := 1; i < len(scored); i++ {
		if scored[i].Score != scored[0].Score {
			break
		}
		n++
	}
	return n
}

func joinReasons(reasons []string) string { return strings.Join(reasons, "; ") }

// Unlink is the only operation allowed to clear a link_id. It is audited and
// snapshots every member row before the change.
func (c *Coordinator) Unlink(ctx context.Context, linkID, reason string) error {
	members, err := c.Records.ByLink(ctx, linkID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("link %s not found", linkID)
	}
	runID := uuid.NewString()
	return database.WithTx(c.DB, func(tx *sql.Tx) error {
		ptrs := make([]*repository.LedgerRecord, len(members))
		ids := make([]string, len(members))
		for i := range members {
			ptrs[i] = &members[i]
			ids[i] = members[i].ID
		}
		backupID, err := c.writeBackups(ctx, tx, runID, ptrs...)
		if err != nil {
			return err
		}
		if _, err := c.Records.ClearLink(ctx, tx, linkID); err != nil {
			return err
		}
		return c.Audit.Append(ctx, tx, repository.AuditEntry{
			RunID: runID, Actor: c.Actor, RecordIDs: ids,
			Decision: "UNLINKED", Reason: reason, BackupID: &backupID,
		})
	})
}
