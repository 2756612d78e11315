// Package token implements the token processor of spec.md §4.4: it turns
// Increment/Activate notifications into Execute messages for the
// dispatcher once a token's count crosses its task's threshold. The actual
// count mutation happens at the call site (trigger engine, progress
// processor) inside their own transactions — this component only performs
// the threshold check and, on Clear, nothing at all (the API writes
// count=0/state=waiting directly). Grounded on
// original_source/src/server/tokens.rs.
package token

import (
	"context"
	"errors"

	"github.com/waterwheel-project/waterwheel/internal/messages"
	"github.com/waterwheel-project/waterwheel/internal/model"
	"github.com/waterwheel-project/waterwheel/internal/postoffice"
	"github.com/waterwheel-project/waterwheel/internal/store"
	"github.com/waterwheel-project/waterwheel/pkg/logger"
)

// Processor consumes Increment/Activate messages and emits Execute.
type Processor struct {
	store *store.Store
	po    *postoffice.PostOffice
	log   logger.Logger
}

// New constructs a Processor.
func New(st *store.Store, po *postoffice.PostOffice, log logger.Logger) *Processor {
	return &Processor{store: st, po: po, log: log}
}

// Boot loads every token already at or above its task's threshold — tokens
// that incremented across a crash before dispatch — and emits Execute for
// each at priority=normal (spec.md §4.4 "Boot").
func (p *Processor) Boot(ctx context.Context) error {
	tokens, err := p.store.ListTokensAboveThreshold(ctx)
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		postoffice.Post(p.po, messages.Execute{
			Token: messages.TokenRef{
				TaskID:          tok.TaskID,
				TriggerDatetime: tok.TriggerDatetime,
			},
			Priority: model.PriorityNormal,
		})
	}
	return nil
}

// Run consumes Increment and Activate until ctx is cancelled. Clear is a
// direct store write performed by the API, so it has no mailbox here.
func (p *Processor) Run(ctx context.Context) error {
	increments := postoffice.Mailbox[messages.Increment](p.po)
	activates := postoffice.Mailbox[messages.Activate](p.po)

	for {
		select {
		case <-ctx.Done():
			return nil
		case inc := <-increments:
			if err := p.handleIncrement(ctx, inc); err != nil {
				p.log.Error("token: increment handling failed",
					"task_id", inc.Token.TaskID, "trigger_datetime", inc.Token.TriggerDatetime, "error", err)
			}
		case act := <-activates:
			p.handleActivate(act)
		}
	}
}

// handleIncrement reads the token's current count/threshold and emits
// Execute if the count has reached threshold (spec.md §4.4 "Increment").
func (p *Processor) handleIncrement(ctx context.Context, inc messages.Increment) error {
	tok, err := p.store.GetToken(ctx, inc.Token.TaskID, inc.Token.TriggerDatetime)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The row was cleared between increment and this check; no
			// longer eligible to fire.
			return nil
		}
		return err
	}

	task, err := p.store.GetTask(ctx, inc.Token.TaskID)
	if err != nil {
		return err
	}
	if !thresholdMet(tok.Count, task.Threshold) {
		return nil
	}

	postoffice.Post(p.po, messages.Execute{Token: inc.Token, Priority: inc.Priority})
	return nil
}

// thresholdMet reports whether count has reached threshold; threshold < 1
// (unset) defaults to 1, per spec.md §4.4's "Threshold default is
// len(depends) or 1".
func thresholdMet(count, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}
	return count >= threshold
}

// handleActivate bypasses the threshold check entirely (spec.md §4.4
// "Activate" — manual task creation via the API).
func (p *Processor) handleActivate(act messages.Activate) {
	postoffice.Post(p.po, messages.Execute{Token: act.Token, Priority: act.Priority})
}
