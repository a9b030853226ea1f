package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"plancake/pkg/resources"
)

type repository struct {
	tracer  trace.Tracer
	metrics *DBMetrics
	pool    resources.DBInstance
}

func NewRepository(pool resources.DBInstance) Repository {
	return &repository{
		tracer:  otel.GetTracerProvider().Tracer("plancake/core"),
		metrics: NewDBMetrics(),
		pool:    pool,
	}
}

func (r *repository) InTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	ctx, span := r.tracer.Start(ctx, "repository.InTx")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(ctx, r.store(tx))
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *repository) View(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return fn(ctx, r.store(r.pool))
}

func (r *repository) store(q resources.Querier) *pgStore {
	return &pgStore{tracer: r.tracer, metrics: r.metrics, q: q}
}

type pgStore struct {
	tracer  trace.Tracer
	metrics *DBMetrics
	q       resources.Querier
}

// instrument opens a span and returns the function that records the outcome.
func (s *pgStore) instrument(ctx context.Context, op string) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "repository."+op)

	return ctx, func(err error) {
		s.metrics.Observe(ctx, op, start, err)

		if err != nil {
			span.RecordError(err)
		}

		span.End()
	}
}

const eventColumns = "e.id, u.code, e.creator_id, e.title, e.kind, e.duration, e.time_zone, e.created_at, e.updated_at"

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e    Event
		kind string
	)

	err := row.Scan(&e.Id, &e.Code, &e.CreatorId, &e.Title, &kind, &e.Duration, &e.TimeZone, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Kind = EventKind(kind)

	return &e, nil
}

func (s *pgStore) CodeExists(ctx context.Context, code string) (exists bool, err error) {
	ctx, done := s.instrument(ctx, "code_exists")
	defer func() { done(err) }()

	err = s.q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM url_codes WHERE code = $1)", code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check url code: %w", err)
	}

	return exists, nil
}

func (s *pgStore) TouchCode(ctx context.Context, code string, at time.Time) (err error) {
	ctx, done := s.instrument(ctx, "touch_code")
	defer func() { done(err) }()

	_, err = s.q.Exec(ctx, "UPDATE url_codes SET last_used = $2 WHERE code = $1", code, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to touch url code: %w", err)
	}

	return nil
}

func (s *pgStore) DeleteCodesUnusedSince(ctx context.Context, before time.Time) (n int64, err error) {
	ctx, done := s.instrument(ctx, "delete_expired_codes")
	defer func() { done(err) }()

	tag, err := s.q.Exec(ctx, "DELETE FROM url_codes WHERE last_used < $1", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired url codes: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *pgStore) CreateEvent(ctx context.Context, event *Event, slots []SlotKey) (saved *Event, err error) {
	ctx, done := s.instrument(ctx, "create_event")
	defer func() { done(err) }()

	err = s.q.QueryRow(ctx,
		"INSERT INTO events (creator_id, title, kind, duration, time_zone) "+
			"VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING id, created_at, updated_at",
		event.CreatorId, event.Title, string(event.Kind), event.Duration, event.TimeZone).
		Scan(&event.Id, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	_, err = s.q.Exec(ctx, "INSERT INTO url_codes (code, event_id) VALUES ($1, $2)", event.Code, event.Id)
	if isCodeClash(err) {
		return nil, ErrCodeTaken
	}

	if err != nil {
		return nil, fmt.Errorf("failed to insert url code: %w", err)
	}

	err = s.InsertSlots(ctx, event, slots)
	if err != nil {
		return nil, err
	}

	return event, nil
}

// isCodeClash reports a unique violation on the url_codes primary key.
func isCodeClash(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == "23505" && pgErr.ConstraintName == "url_codes_pkey"
}

func (s *pgStore) GetEventByCode(ctx context.Context, code string) (event *Event, err error) {
	ctx, done := s.instrument(ctx, "get_event_by_code")
	defer func() { done(err) }()

	event, err = scanEvent(s.q.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events e JOIN url_codes u ON u.event_id = e.id
		 WHERE u.code = $1`,
		code,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get event by code: %w", err)
	}

	return event, nil
}

func (s *pgStore) UpdateEvent(ctx context.Context, event *Event) (err error) {
	ctx, done := s.instrument(ctx, "update_event")
	defer func() { done(err) }()

	_, err = s.q.Exec(ctx,
		"UPDATE events SET title = $2, duration = $3, time_zone = $4, updated_at = $5 WHERE id = $1",
		event.Id, event.Title, event.Duration, event.TimeZone, event.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return nil
}

func (s *pgStore) listEvents(ctx context.Context, query string, identity string) ([]Event, error) {
	rows, err := s.q.Query(ctx, query, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, *event)
	}

	return events, rows.Err()
}

func (s *pgStore) ListEventsByCreator(ctx context.Context, identity string) (events []Event, err error) {
	ctx, done := s.instrument(ctx, "list_events_by_creator")
	defer func() { done(err) }()

	events, err = s.listEvents(ctx,
		`SELECT `+eventColumns+`
		 FROM events e JOIN url_codes u ON u.event_id = e.id
		 WHERE e.creator_id = $1
		 ORDER BY e.created_at`,
		identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list created events: %w", err)
	}

	return events, nil
}

func (s *pgStore) ListEventsByParticipant(ctx context.Context, identity string) (events []Event, err error) {
	ctx, done := s.instrument(ctx, "list_events_by_participant")
	defer func() { done(err) }()

	events, err = s.listEvents(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 JOIN url_codes u ON u.event_id = e.id
		 JOIN participants p ON p.event_id = e.id
		 WHERE p.identity = $1 AND e.creator_id <> $1
		 ORDER BY e.created_at`,
		identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list participated events: %w", err)
	}

	return events, nil
}

// splitGeneric turns generic keys into the parallel arrays unnest() expects.
func splitGeneric(slots []SlotKey) ([]int, []int) {
	weekdays := make([]int, len(slots))
	minutes := make([]int, len(slots))

	for i, slot := range slots {
		weekdays[i] = slot.Weekday
		minutes[i] = slot.Minute
	}

	return weekdays, minutes
}

func instants(slots []SlotKey) []time.Time {
	out := make([]time.Time, len(slots))
	for i, slot := range slots {
		out[i] = slot.Instant()
	}

	return out
}

func (s *pgStore) ListSlots(ctx context.Context, event *Event) (slots []SlotKey, err error) {
	ctx, done := s.instrument(ctx, "list_slots")
	defer func() { done(err) }()

	var rows pgx.Rows

	if event.Kind == KindSpecific {
		rows, err = s.q.Query(ctx,
			"SELECT utc_timeslot FROM date_timeslots WHERE event_id = $1 ORDER BY utc_timeslot", event.Id)
	} else {
		rows, err = s.q.Query(ctx,
			"SELECT weekday, local_minute FROM weekday_timeslots WHERE event_id = $1 ORDER BY weekday, local_minute", event.Id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list timeslots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		slot, err := scanSlot(rows, event.Kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeslot: %w", err)
		}

		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

func scanSlot(row pgx.Row, kind EventKind, prefix ...any) (SlotKey, error) {
	if kind == KindSpecific {
		var instant time.Time

		err := row.Scan(append(prefix, &instant)...)
		if err != nil {
			return SlotKey{}, err
		}

		return SpecificSlot(instant), nil
	}

	var weekday, minute int

	err := row.Scan(append(prefix, &weekday, &minute)...)
	if err != nil {
		return SlotKey{}, err
	}

	return GenericSlot(weekday, minute), nil
}

func (s *pgStore) InsertSlots(ctx context.Context, event *Event, slots []SlotKey) (err error) {
	if len(slots) == 0 {
		return nil
	}

	ctx, done := s.instrument(ctx, "insert_slots")
	defer func() { done(err) }()

	if event.Kind == KindSpecific {
		_, err = s.q.Exec(ctx,
			"INSERT INTO date_timeslots (event_id, utc_timeslot) SELECT $1, unnest($2::timestamp[])",
			event.Id, instants(slots))
	} else {
		weekdays, minutes := splitGeneric(slots)
		_, err = s.q.Exec(ctx,
			"INSERT INTO weekday_timeslots (event_id, weekday, local_minute) "+
				"SELECT $1, unnest($2::smallint[]), unnest($3::smallint[])",
			event.Id, weekdays, minutes)
	}

	if err != nil {
		return fmt.Errorf("failed to insert timeslots: %w", err)
	}

	return nil
}

func (s *pgStore) DeleteSlots(ctx context.Context, event *Event, slots []SlotKey) (err error) {
	if len(slots) == 0 {
		return nil
	}

	ctx, done := s.instrument(ctx, "delete_slots")
	defer func() { done(err) }()

	// availability rows go with their timeslot through ON DELETE CASCADE
	if event.Kind == KindSpecific {
		_, err = s.q.Exec(ctx,
			"DELETE FROM date_timeslots WHERE event_id = $1 AND utc_timeslot = ANY($2)",
			event.Id, instants(slots))
	} else {
		weekdays, minutes := splitGeneric(slots)
		_, err = s.q.Exec(ctx,
			"DELETE FROM weekday_timeslots w "+
				"USING unnest($2::smallint[], $3::smallint[]) AS d(weekday, local_minute) "+
				"WHERE w.event_id = $1 AND w.weekday = d.weekday AND w.local_minute = d.local_minute",
			event.Id, weekdays, minutes)
	}

	if err != nil {
		return fmt.Errorf("failed to delete timeslots: %w", err)
	}

	return nil
}

const participantColumns = "id, event_id, identity, display_name, time_zone, created_at, updated_at"

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant

	err := row.Scan(&p.Id, &p.EventId, &p.Identity, &p.DisplayName, &p.TimeZone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *pgStore) ListParticipants(ctx context.Context, eventId string) (participants []Participant, err error) {
	ctx, done := s.instrument(ctx, "list_participants")
	defer func() { done(err) }()

	rows, err := s.q.Query(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE event_id = $1 ORDER BY created_at, id", eventId)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		participants = append(participants, *p)
	}

	return participants, rows.Err()
}

func (s *pgStore) getParticipant(ctx context.Context, op string, query string, args ...any) (p *Participant, err error) {
	ctx, done := s.instrument(ctx, op)
	defer func() { done(err) }()

	p, err = scanParticipant(s.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

func (s *pgStore) GetParticipant(ctx context.Context, eventId string, identity string) (*Participant, error) {
	return s.getParticipant(ctx, "get_participant",
		"SELECT "+participantColumns+" FROM participants WHERE event_id = $1 AND identity = $2",
		eventId, identity)
}

func (s *pgStore) GetParticipantByName(ctx context.Context, eventId string, displayName string) (*Participant, error) {
	return s.getParticipant(ctx, "get_participant_by_name",
		"SELECT "+participantColumns+" FROM participants WHERE event_id = $1 AND display_name = $2",
		eventId, displayName)
}

func (s *pgStore) SaveParticipant(ctx context.Context, participant *Participant) (saved *Participant, created bool, err error) {
	ctx, done := s.instrument(ctx, "save_participant")
	defer func() { done(err) }()

	p := *participant

	err = s.q.QueryRow(ctx,
		"INSERT INTO participants (event_id, identity, display_name, time_zone) "+
			"VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (event_id, identity) DO UPDATE "+
			"SET display_name = EXCLUDED.display_name, time_zone = EXCLUDED.time_zone, updated_at = now() "+
			"RETURNING id, created_at, updated_at, (xmax = 0) AS inserted",
		p.EventId, p.Identity, p.DisplayName, p.TimeZone).
		Scan(&p.Id, &p.CreatedAt, &p.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save participant: %w", err)
	}

	return &p, created, nil
}

func (s *pgStore) DeleteParticipant(ctx context.Context, participantId string) (err error) {
	ctx, done := s.instrument(ctx, "delete_participant")
	defer func() { done(err) }()

	tag, err := s.q.Exec(ctx, "DELETE FROM participants WHERE id = $1", participantId)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}

	return nil
}

func (s *pgStore) queryMarks(ctx context.Context, event *Event, query string, arg any) ([]Mark, error) {
	rows, err := s.q.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []Mark

	for rows.Next() {
		var m Mark

		m.Slot, err = scanSlot(rows, event.Kind, &m.ParticipantId)
		if err != nil {
			return nil, err
		}

		marks = append(marks, m)
	}

	return marks, rows.Err()
}

func markQuery(kind EventKind, filter string) string {
	if kind == KindSpecific {
		return "SELECT a.participant_id, t.utc_timeslot FROM date_availability a " +
			"JOIN date_timeslots t ON t.id = a.timeslot_id WHERE " + filter + " ORDER BY t.utc_timeslot"
	}

	return "SELECT a.participant_id, t.weekday, t.local_minute FROM weekday_availability a " +
		"JOIN weekday_timeslots t ON t.id = a.timeslot_id WHERE " + filter + " ORDER BY t.weekday, t.local_minute"
}

func (s *pgStore) ListMarks(ctx context.Context, event *Event) (marks []Mark, err error) {
	ctx, done := s.instrument(ctx, "list_marks")
	defer func() { done(err) }()

	marks, err = s.queryMarks(ctx, event, markQuery(event.Kind, "t.event_id = $1"), event.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}

	return marks, nil
}

func (s *pgStore) ListParticipantMarks(ctx context.Context, event *Event, participantId string) (slots []SlotKey, err error) {
	ctx, done := s.instrument(ctx, "list_participant_marks")
	defer func() { done(err) }()

	marks, err := s.queryMarks(ctx, event, markQuery(event.Kind, "a.participant_id = $1"), participantId)
	if err != nil {
		return nil, fmt.Errorf("failed to list participant availability: %w", err)
	}

	for _, m := range marks {
		slots = append(slots, m.Slot)
	}

	return slots, nil
}

func (s *pgStore) ReplaceMarks(ctx context.Context, event *Event, participantId string, slots []SlotKey) (err error) {
	ctx, done := s.instrument(ctx, "replace_marks")
	defer func() { done(err) }()

	table := "weekday_availability"
	if event.Kind == KindSpecific {
		table = "date_availability"
	}

	_, err = s.q.Exec(ctx, "DELETE FROM "+table+" WHERE participant_id = $1", participantId)
	if err != nil {
		return fmt.Errorf("failed to clear availability: %w", err)
	}

	if len(slots) == 0 {
		return nil
	}

	if event.Kind == KindSpecific {
		_, err = s.q.Exec(ctx,
			"INSERT INTO date_availability (participant_id, timeslot_id) "+
				"SELECT $1, t.id FROM date_timeslots t WHERE t.event_id = $2 AND t.utc_timeslot = ANY($3)",
			participantId, event.Id, instants(slots))
	} else {
		weekdays, minutes := splitGeneric(slots)
		_, err = s.q.Exec(ctx,
			"INSERT INTO weekday_availability (participant_id, timeslot_id) "+
				"SELECT $1, t.id FROM weekday_timeslots t "+
				"JOIN unnest($3::smallint[], $4::smallint[]) AS d(weekday, local_minute) "+
				"ON t.weekday = d.weekday AND t.local_minute = d.local_minute "+
				"WHERE t.event_id = $2",
			participantId, event.Id, weekdays, minutes)
	}

	if err != nil {
		return fmt.Errorf("failed to insert availability: %w", err)
	}

	return nil
}

/*

 */

type DBMetrics struct {
	qTotal   metric.Int64Counter
	qErrors  metric.Int64Counter
	qLatency metric.Float64Histogram
}

func NewDBMetrics() *DBMetrics {
	meter := otel.Meter("plancake/db")

	qTotal, _ := meter.Int64Counter("db.query.total")
	qErrors, _ := meter.Int64Counter("db.query.errors.total")
	qLatency, _ := meter.Float64Histogram("db.query.duration.ms")

	return &DBMetrics{qTotal: qTotal, qErrors: qErrors, qLatency: qLatency}
}

func (m *DBMetrics) Observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgres"),
		attribute.String("db.operation", op),
	}

	m.qTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	ms := float64(time.Since(start).Milliseconds())
	m.qLatency.Record(ctx, ms, metric.WithAttributes(attrs...))

	if err != nil {
		m.qErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
