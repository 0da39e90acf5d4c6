package engine

import (
	"context"
	"fmt"

	"github.com/roach88/statekeep/internal/fsm"
	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/store"
)

// Mismatch is a journaled version the replay could not reproduce.
type Mismatch struct {
	Version  int64  `json:"version"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Reason   string `json:"reason"`
}

// ReplayResult reports how far a replay reproduced the journal.
type ReplayResult struct {
	ActorID    string     `json:"actor_id"`
	Machine    string     `json:"machine"`
	Versions   int        `json:"versions"`
	Final      Snapshot   `json:"-"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether every journaled version was reproduced.
func (r *ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay checks that an actor's journal is reproducible.
//
// A fresh actor is built from def and the journaled initial context, started,
// and fed the journaled events in version order. After each step the snapshot
// digest is compared to the journaled digest. Replay stops at the first
// mismatch: later versions depend on it and would only repeat the report.
//
// Replay writes nothing. Running it any number of times gives the same
// result for the same journal and definition.
func Replay(ctx context.Context, st *store.Store, actorID string, def *Definition) (*ReplayResult, error) {
	rec, err := st.ReadActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	journaled, err := st.ReadSnapshots(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", actorID, err)
	}
	if len(journaled) == 0 {
		return nil, fmt.Errorf("replay %s: no snapshots journaled", actorID)
	}

	res := &ReplayResult{
		ActorID:    actorID,
		Machine:    rec.Machine,
		Mismatches: []Mismatch{},
	}

	actor := fsm.NewActor(def, rec.InitialContext, fsm.WithID[ir.IRObject](actorID))
	current, err := actor.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", actorID, err)
	}

	for i, want := range journaled {
		if i > 0 {
			if want.Event == nil {
				res.addMismatch(want, "", "journaled snapshot has no event")
				break
			}
			next, ok, err := actor.Send(ctx, *want.Event)
			if err != nil {
				res.addMismatch(want, "", fmt.Sprintf("event %s failed: %v", want.Event.Kind, err))
				break
			}
			if !ok {
				res.addMismatch(want, "", fmt.Sprintf("event %s was ignored", want.Event.Kind))
				break
			}
			current = next
		}

		if current.Version != want.Version {
			res.addMismatch(want, "", fmt.Sprintf("replay reached version %d", current.Version))
			break
		}

		digest, err := ir.SnapshotDigest(current.State, current.Context, current.Version)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", actorID, err)
		}
		if digest != want.Digest {
			res.addMismatch(want, digest, "digest differs")
			break
		}
		res.Versions++
	}

	res.Final = actor.Snapshot()
	return res, nil
}

func (r *ReplayResult) addMismatch(want store.SnapshotRecord, actual, reason string) {
	r.Mismatches = append(r.Mismatches, Mismatch{
		Version:  want.Version,
		Expected: want.Digest,
		Actual:   actual,
		Reason:   reason,
	})
}
