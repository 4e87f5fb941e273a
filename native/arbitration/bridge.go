package arbitration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Handik4/GenLayer-Escrow/core/events"
	"github.com/Handik4/GenLayer-Escrow/native/escrow"
)

// Outcome is the machine-readable result of an arbitration request.
type Outcome string

const (
	// OutcomeWorkerWon means the verdict settled the deal in the worker's
	// favour and the full locked amount was paid out.
	OutcomeWorkerWon Outcome = "WORKER_WON"
	// OutcomeWorkerLost means the verdict went against the worker; the deal
	// stays ACTIVE and may be arbitrated again.
	OutcomeWorkerLost Outcome = "WORKER_LOST"
)

// ErrConsensusFailed is returned when no usable verdict could be extracted
// from the oracle answer. The deal is left untouched and the worker may
// re-request arbitration.
var ErrConsensusFailed = errors.New("arbitration: ai consensus failed")

// proofExcerptLimit caps how much of the fetched proof document is folded into
// the judgment prompt.
const proofExcerptLimit = 1000

// Bridge obtains an external judgment for an eligible deal and folds it into
// deterministic ledger state. The oracle call is the single non-deterministic
// step; everything after the raw answer is obtained (sanitising, parsing,
// settling) is deterministic and either applies in full or not at all.
type Bridge struct {
	engine  *escrow.Engine
	fetcher ProofFetcher
	oracle  Oracle
	emitter events.Emitter
}

// NewBridge wires the bridge to the deal engine it settles against.
func NewBridge(engine *escrow.Engine, fetcher ProofFetcher, oracle Oracle) *Bridge {
	return &Bridge{
		engine:  engine,
		fetcher: fetcher,
		oracle:  oracle,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter used by the bridge. Passing nil
// resets the emitter to a no-op implementation.
func (b *Bridge) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// Request runs one full arbitration round for the deal: gate checks, proof
// fetch, oracle call, verdict application. Gate failures surface the ledger's
// own errors (ErrNotFound, ErrUnauthorized, ErrNotActive). Fetch, oracle and
// parse failures all collapse into ErrConsensusFailed with no state change.
func (b *Bridge) Request(ctx context.Context, id uint64, caller [20]byte, proofURL string) (Outcome, error) {
	if b == nil || b.engine == nil {
		return "", errors.New("arbitration: bridge not configured")
	}
	deal, err := b.engine.CheckArbitrationEligible(id, caller)
	if err != nil {
		return "", err
	}
	requestID := uuid.NewString()
	b.emit(NewRequestedEvent(id, requestID, proofURL))

	raw, err := b.obtainRawAnswer(ctx, id, deal.Terms, proofURL)
	if err != nil {
		b.emit(NewFailedEvent(id, requestID, err.Error()))
		return "", ErrConsensusFailed
	}
	return b.applyRawVerdict(id, caller, requestID, raw)
}

// obtainRawAnswer is the non-deterministic phase: fetch the proof document and
// ask the oracle for a judgment. The surrounding replication layer is
// responsible for agreeing on one raw answer before it is applied.
func (b *Bridge) obtainRawAnswer(ctx context.Context, id uint64, terms, proofURL string) (string, error) {
	tracer := otel.Tracer("arbitration")
	ctx, span := tracer.Start(ctx, "arbitration.oracle",
		trace.WithAttributes(attribute.Int64("deal.id", int64(id))))
	defer span.End()

	if b.fetcher == nil || b.oracle == nil {
		err := errors.New("oracle not configured")
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	proof, err := b.fetcher.FetchText(ctx, proofURL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	raw, err := b.oracle.GenerateText(ctx, BuildPrompt(terms, proof))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return raw, nil
}

// applyRawVerdict is the deterministic phase: sanitise the agreed raw answer,
// parse the verdict, and settle the deal exactly once on a win. A malformed
// answer mutates nothing.
func (b *Bridge) applyRawVerdict(id uint64, caller [20]byte, requestID, raw string) (Outcome, error) {
	verdict, err := ParseVerdict(raw)
	if err != nil {
		b.emit(NewFailedEvent(id, requestID, err.Error()))
		return "", ErrConsensusFailed
	}
	if verdict.Win {
		if err := b.engine.SettleArbitrationWin(id, caller); err != nil {
			return "", err
		}
		return OutcomeWorkerWon, nil
	}
	b.emit(NewWorkerLostEvent(id, requestID))
	return OutcomeWorkerLost, nil
}

// BuildPrompt formats the judgment request from the deal terms and the first
// proofExcerptLimit characters of the fetched proof text.
func BuildPrompt(terms, proof string) string {
	excerpt := proof
	if runes := []rune(proof); len(runes) > proofExcerptLimit {
		excerpt = string(runes[:proofExcerptLimit])
	}
	return fmt.Sprintf("Contract: %s. Proof: %s. Decision JSON: {'win': true/false}", terms, excerpt)
}

// Verdict is the structured outcome extracted from a sanitised oracle answer.
type Verdict struct {
	Win bool `json:"win"`
}

// SanitizeAnswer strips code-fence decoration from a raw oracle answer.
func SanitizeAnswer(raw string) string {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}

// ParseVerdict sanitises and parses a raw oracle answer. The answer must be a
// JSON object; a missing win field defaults to false, and any other shape
// (malformed JSON, arrays, scalars, non-boolean win) is an error.
func ParseVerdict(raw string) (Verdict, error) {
	clean := SanitizeAnswer(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	verdict := Verdict{}
	if rawWin, ok := fields["win"]; ok {
		if err := json.Unmarshal(rawWin, &verdict.Win); err != nil {
			return Verdict{}, fmt.Errorf("parse verdict win field: %w", err)
		}
	}
	return verdict, nil
}

func (b *Bridge) emit(event *ledgerEvent) {
	if b == nil || b.emitter == nil || event == nil {
		return
	}
	b.emitter.Emit(event)
}
