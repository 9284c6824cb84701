package kvsvc

import (
	"context"
	"errors"
	"time"

	"github.com/kevadb/keva/internal/kbkey"
	"github.com/kevadb/keva/internal/ledger"
	"github.com/kevadb/keva/internal/telemetry"
	logpkg "github.com/kevadb/keva/pkg/log"
)

// Options tunes a Service.
type Options struct {
	Logger  logpkg.Logger
	Metrics *telemetry.Metrics
	// RetentionKeepLast caps the live history per key after each store.
	// 0 disables trimming.
	RetentionKeepLast int
	// ArchiveTrimmed copies trimmed records to the archive area instead of
	// discarding them.
	ArchiveTrimmed bool
	// PayloadMaxBytes rejects store values above this size. 0 disables the
	// cap.
	PayloadMaxBytes int
}

// Service is the knowledge-store facade: key validation, versioned
// append with optimistic concurrency, point and as-of reads, history
// paging with CEL filtering, scope dumps, and post-store retention.
type Service struct {
	led     *ledger.Ledger
	logger  logpkg.Logger
	metrics *telemetry.Metrics

	keepLast   int
	archive    bool
	maxPayload int
}

// New returns a Service over led.
func New(led *ledger.Ledger, opts Options) *Service {
	l := opts.Logger
	if l == nil {
		l = logpkg.NewLogger().With(logpkg.Component("kv"))
	}
	return &Service{
		led:        led,
		logger:     l,
		metrics:    opts.Metrics,
		keepLast:   opts.RetentionKeepLast,
		archive:    opts.ArchiveTrimmed,
		maxPayload: opts.PayloadMaxBytes,
	}
}

// Store validates, appends one version, and triggers best-effort retention
// trimming. Counters reflect the outcome; the latency histogram covers the
// append, not the trim.
func (s *Service) Store(ctx context.Context, req StoreRequest) (StoreResult, error) {
	t0 := time.Now()
	res, err := s.store(ctx, req)
	if s.metrics != nil {
		switch {
		case err == nil:
			s.metrics.StoreOK.Inc()
		case CodeOf(err) == CodeConflict:
			s.metrics.StoreConflict.Inc()
		default:
			s.metrics.StoreFail.Inc()
		}
		s.metrics.ObserveOp("store", time.Since(t0))
	}
	if err != nil {
		return StoreResult{}, err
	}

	if s.keepLast > 0 {
		tr, terr := s.led.TrimToKeepLast(ctx, res.Key, s.keepLast, s.archive)
		if terr != nil {
			s.logger.With(logpkg.Str("key", res.Key), logpkg.Err(terr)).Warn("kv.trim")
		} else if tr.Deleted > 0 {
			s.logger.With(
				logpkg.Str("key", res.Key),
				logpkg.Int("deleted", tr.Deleted),
				logpkg.Int("archived", tr.Archived),
				logpkg.Uint64("min_version", tr.MinVersion),
				logpkg.Uint64("max_version", tr.MaxVersion),
			).Debug("kv.trim")
		}
	}
	return res, nil
}

func (s *Service) store(ctx context.Context, req StoreRequest) (StoreResult, error) {
	key, err := kbkey.Parse(req.Key)
	if err != nil {
		return StoreResult{}, E(CodeInvalidKey, err)
	}
	if s.maxPayload > 0 && len(req.Value) > s.maxPayload {
		return StoreResult{}, Errorf(CodePayloadTooLarge, "payload %d bytes exceeds cap %d", len(req.Value), s.maxPayload)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	rec, err := s.led.Append(ctx, ledger.AppendRequest{
		Key:         key,
		ContentType: contentType,
		Value:       req.Value,
		Tags:        req.Tags,
		CreatedBy:   req.CreatedBy,
		IfMatch:     req.IfMatch,
		Delete:      req.Delete,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return StoreResult{}, E(CodeConflict, err)
		}
		return StoreResult{}, E(CodeInternal, err)
	}

	s.logger.With(
		logpkg.Str("key", rec.Key),
		logpkg.Uint64("version", rec.Version),
		logpkg.Int("bytes", len(rec.Value)),
		logpkg.Dur("dur", time.Since(rec.CreatedAt)),
	).Debug("kv.store")

	return StoreResult{
		Key:       rec.Key,
		Version:   rec.Version,
		ETag:      rec.ETag,
		CreatedAt: rec.CreatedAt,
		Deleted:   rec.Deleted,
	}, nil
}

// Get resolves one record. Version and AsOf are mutually exclusive; with
// neither set the current record is returned.
func (s *Service) Get(ctx context.Context, req GetRequest) (GetResult, error) {
	t0 := time.Now()
	res, err := s.get(req)
	if s.metrics != nil {
		switch {
		case err == nil:
			s.metrics.GetOK.Inc()
		case CodeOf(err) == CodeNotFound:
			s.metrics.GetNotFound.Inc()
		default:
			s.metrics.GetFail.Inc()
		}
		s.metrics.ObserveOp("get", time.Since(t0))
	}
	return res, err
}

func (s *Service) get(req GetRequest) (GetResult, error) {
	if err := kbkey.Validate(req.Key); err != nil {
		return GetResult{}, E(CodeInvalidKey, err)
	}
	if req.Version != 0 && req.AsOf != nil {
		return GetResult{}, Errorf(CodeInvalidArgument, "version and as_of are mutually exclusive")
	}

	var (
		rec ledger.Record
		err error
	)
	switch {
	case req.Version != 0:
		rec, err = s.led.GetVersion(req.Key, req.Version)
	case req.AsOf != nil:
		rec, err = s.led.AsOf(req.Key, *req.AsOf)
	default:
		rec, err = s.led.Latest(req.Key)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return GetResult{}, E(CodeNotFound, err)
		}
		return GetResult{}, E(CodeInternal, err)
	}
	return GetResult{Record: rec}, nil
}

// History returns one page of key's versions, oldest first, with a resume
// token for the next page. The CEL filter runs after paging, so a filtered
// page may be short without being the last one.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]ledger.Record, ledger.Token, error) {
	t0 := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOp("history", time.Since(t0))
		}
	}()

	if err := kbkey.Validate(req.Key); err != nil {
		return nil, ledger.Token{}, E(CodeInvalidKey, err)
	}
	filter, err := newCELFilter(req.Filter)
	if err != nil {
		return nil, ledger.Token{}, E(CodeInvalidArgument, err)
	}

	var out []ledger.Record
	if req.IncludeArchived && req.Start.Version() == 0 {
		archived, err := s.led.ArchivedHistory(req.Key)
		if err != nil {
			return nil, ledger.Token{}, E(CodeInternal, err)
		}
		for _, rec := range archived {
			if filter.Eval(rec) {
				out = append(out, rec)
			}
		}
	}

	records, next, err := s.led.History(req.Key, req.Start, req.Limit)
	if err != nil {
		return nil, ledger.Token{}, E(CodeInternal, err)
	}
	for _, rec := range records {
		if filter.Eval(rec) {
			out = append(out, rec)
		}
	}
	return out, next, nil
}

// Dump lists every key written under a scope with its newest non-deleted
// record. Keys whose versions are all deleted appear with a nil Current.
func (s *Service) Dump(ctx context.Context, req DumpRequest) ([]DumpEntry, error) {
	t0 := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOp("dump", time.Since(t0))
		}
	}()

	if req.Scope == "" {
		return nil, Errorf(CodeInvalidArgument, "scope is required")
	}
	filter, err := newCELFilter(req.Filter)
	if err != nil {
		return nil, E(CodeInvalidArgument, err)
	}

	entries, err := s.led.ListScope(req.Scope)
	if err != nil {
		return nil, E(CodeInternal, err)
	}
	out := make([]DumpEntry, 0, len(entries))
	for _, e := range entries {
		de := DumpEntry{Key: e.Key, LastVersion: e.LastVersion}
		rec, err := s.led.Latest(e.Key)
		switch {
		case err == nil:
			if !filter.Eval(rec) {
				continue
			}
			de.Current = &rec
		case errors.Is(err, ledger.ErrNotFound):
			// every version deleted; keep the entry without a record
		default:
			return nil, E(CodeInternal, err)
		}
		out = append(out, de)
	}
	return out, nil
}
