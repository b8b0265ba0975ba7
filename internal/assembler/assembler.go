// Package assembler turns one realtime response into visitor, session and
// event records.
//
// Each visit moves through START -> SESSION_BUILT -> EVENTS_WALKED -> LINKED
// -> DONE. Visits are processed in response order because first-day tracking
// and the geo cache see the writes of earlier visits. A visit that fails is
// reported in Batch.Skipped and the rest of the response still assembles.
package assembler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tongjisync/internal/channel"
	"tongjisync/internal/geo"
	"tongjisync/internal/normalize"
	"tongjisync/internal/record"
	"tongjisync/internal/tongji"
	"tongjisync/internal/urlparse"
)

// Stage is a step of the per-visit pipeline.
type Stage string

const (
	StageStart        Stage = "start"
	StageSessionBuilt Stage = "session_built"
	StageEventsWalked Stage = "events_walked"
	StageLinked       Stage = "linked"
	StageDone         Stage = "done"
)

// GeoResolver is satisfied by *geo.Resolver.
type GeoResolver interface {
	Resolve(ctx context.Context, name, ip string) geo.Resolution
}

// FirstVisitStore remembers the date of a visitor's first visit. Entries
// are expected to expire after kv.FirstVisitTTL.
type FirstVisitStore interface {
	FirstVisitDay(ctx context.Context, visitorID string) (string, bool, error)
	SetFirstVisitDay(ctx context.Context, visitorID, day string) error
}

// Deps are the collaborators of an Assembler. Nil members get a neutral
// default: no geo resolution, no custom or search parameters, no category
// lookup and no first-day memory.
type Deps struct {
	Times       *normalize.Normalizer
	Geo         GeoResolver
	Params      *urlparse.Parser
	Channels    *channel.Classifier
	FirstVisits FirstVisitStore
	Log         *zap.Logger
}

type Assembler struct {
	times       *normalize.Normalizer
	geo         GeoResolver
	params      *urlparse.Parser
	channels    *channel.Classifier
	firstVisits FirstVisitStore
	log         *zap.Logger
}

func New(d Deps) *Assembler {
	a := &Assembler{
		times:       d.Times,
		geo:         d.Geo,
		params:      d.Params,
		channels:    d.Channels,
		firstVisits: d.FirstVisits,
		log:         d.Log,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.times == nil {
		a.times = normalize.NewNormalizer(nil, nil)
	}
	if a.params == nil {
		a.params = urlparse.NewParser(nil, nil)
	}
	if a.channels == nil {
		a.channels = channel.NewClassifier(nil, nil, a.log)
	}
	return a
}

// VisitError describes a visit that was skipped.
type VisitError struct {
	Index     int
	VisitorID string
	Stage     Stage
	Err       error
}

func (e VisitError) Error() string {
	return fmt.Sprintf("visit %d (visitor %s) at %s: %v", e.Index, e.VisitorID, e.Stage, e.Err)
}

func (e VisitError) Unwrap() error { return e.Err }

// VisitResult is the outcome of one visit. Err is a VisitError when set.
type VisitResult struct {
	Record record.Record
	Err    error
}

// Batch is the outcome of one response.
type Batch struct {
	Records []record.Record
	Skipped []VisitError
}

// Assemble builds a record per visit of r. A structurally malformed response
// fails as a whole and yields an empty Batch. When ctx is cancelled no new
// visit is started and the visits assembled so far are returned with
// ctx.Err().
func (a *Assembler) Assemble(ctx context.Context, r *tongji.RawResponse) (Batch, error) {
	if err := r.Validate(); err != nil {
		return Batch{}, err
	}

	var b Batch
	for i := range r.Outline {
		if err := ctx.Err(); err != nil {
			return b, err
		}
		res := a.AssembleVisit(ctx, i, r.Outline[i], r.Detail[i])
		if res.Err != nil {
			ve := res.Err.(VisitError)
			a.log.Warn("visit skipped",
				zap.Int("index", ve.Index),
				zap.String("visitor_id", ve.VisitorID),
				zap.String("stage", string(ve.Stage)),
				zap.Error(ve.Err),
			)
			b.Skipped = append(b.Skipped, ve)
			continue
		}
		b.Records = append(b.Records, res.Record)
	}
	return b, nil
}

// AssembleVisit runs the pipeline for a single outline/detail pair.
func (a *Assembler) AssembleVisit(ctx context.Context, index int, o tongji.Outline, d tongji.Detail) VisitResult {
	fail := func(stage Stage, err error) VisitResult {
		return VisitResult{Err: VisitError{Index: index, VisitorID: o.VisitorID, Stage: stage, Err: err}}
	}

	v, err := a.buildSession(ctx, o, d)
	if err != nil {
		return fail(StageStart, err)
	}
	events, err := a.walkEvents(ctx, v)
	if err != nil {
		return fail(StageSessionBuilt, err)
	}
	link(&v.session, events)

	return VisitResult{Record: record.Record{
		Visitor: v.visitor,
		Session: v.session,
		Events:  events,
	}}
}

// link fills the session's event references from the walked events.
func link(s *record.Session, events []record.Event) {
	if len(events) == 0 {
		return
	}
	s.FirstEventID = events[0].EventID
	if last := events[len(events)-1]; last.IsSessionEnd {
		s.LastEventID = last.EventID
	}
}
