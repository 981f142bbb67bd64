package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogin "leaflog/internal/modules/catalog/port/in"
	rewarddomain "leaflog/internal/modules/reward/domain"
	"leaflog/internal/modules/session/domain"
	"leaflog/internal/modules/session/dto"
	sessionin "leaflog/internal/modules/session/port/in"
	sessionout "leaflog/internal/modules/session/port/out"
	"leaflog/internal/modules/session/service"
	"leaflog/internal/platform/clock"
	apperrors "leaflog/internal/platform/errors"
)

// Options carries the tunables and optional collaborators the interactor
// needs beyond the service itself.
type Options struct {
	Policy          rewarddomain.GracePolicy
	ExpireThreshold time.Duration
	DebounceQuiet   time.Duration
	Fanout          sessionout.Fanout
	Listeners       []sessionout.Listener
}

type Interactor struct {
	svc       *service.SessionService
	catalog   catalogin.Usecase
	clock     clock.Clock
	policy    rewarddomain.GracePolicy
	threshold time.Duration
	fanout    sessionout.Fanout
	listeners []sessionout.Listener
	debounce  *service.Debouncer
}

func NewInteractor(svc *service.SessionService, catalog catalogin.Usecase, clock clock.Clock, opts Options) sessionin.Usecase {
	return &Interactor{
		svc:       svc,
		catalog:   catalog,
		clock:     clock,
		policy:    opts.Policy,
		threshold: opts.ExpireThreshold,
		fanout:    opts.Fanout,
		listeners: opts.Listeners,
		debounce:  service.NewDebouncer(opts.DebounceQuiet),
	}
}

func (i *Interactor) Start(ctx context.Context, input dto.StartInput) (dto.SessionOutput, error) {
	origin := domain.Surface(input.Origin)
	if input.Origin == "" {
		origin = domain.SurfacePrimary
	}
	if err := origin.Validate(); err != nil {
		return dto.SessionOutput{}, fmt.Errorf("%s: %w", err, apperrors.ErrInvalidInput)
	}
	book, err := i.catalog.GetBook(ctx, input.BookID)
	if err != nil {
		return dto.SessionOutput{}, fmt.Errorf("resolve book: %w", err)
	}

	session, err := i.svc.Start(ctx, book.ID, input.StartPage, origin)
	if errors.Is(err, apperrors.ErrSessionConflict) {
		if !input.Takeover {
			return dto.SessionOutput{}, err
		}
		// Explicit user choice: throw the stale session away, not finish it,
		// since its page progress is not attributable to a finish.
		discarded, ok, derr := i.svc.Discard(ctx, "")
		if derr != nil {
			return dto.SessionOutput{}, derr
		}
		if ok {
			i.emit(domain.Event{Kind: domain.EventDiscarded, SessionID: discarded.ID, BookID: discarded.BookID, Page: discarded.CurrentPage, At: discarded.LastUpdated, Origin: origin})
			if i.fanout != nil {
				i.fanout.SessionDiscarded(ctx, discarded.ID)
			}
		}
		session, err = i.svc.Start(ctx, book.ID, input.StartPage, origin)
	}
	if err != nil {
		return dto.SessionOutput{}, err
	}

	i.emit(domain.Event{Kind: domain.EventStarted, SessionID: session.ID, BookID: session.BookID, Page: session.CurrentPage, At: session.StartedAt, Origin: origin})
	if i.fanout != nil {
		i.fanout.SessionStarted(ctx, session)
	}
	return i.sessionOutput(session, book.Title, book.TotalPages, session.StartedAt), nil
}

func (i *Interactor) Pause(ctx context.Context) (dto.SessionOutput, error) {
	session, err := i.svc.Pause(ctx)
	if err != nil {
		return dto.SessionOutput{}, err
	}
	i.debounce.Cancel()
	i.emit(domain.Event{Kind: domain.EventPaused, SessionID: session.ID, BookID: session.BookID, Page: session.CurrentPage, At: session.LastUpdated, Origin: session.Origin})
	if i.fanout != nil {
		i.fanout.SessionUpdated(ctx, session)
	}
	return i.describe(ctx, session, session.LastUpdated), nil
}

func (i *Interactor) Resume(ctx context.Context) (dto.SessionOutput, error) {
	session, err := i.svc.Resume(ctx)
	if err != nil {
		return dto.SessionOutput{}, err
	}
	i.emit(domain.Event{Kind: domain.EventResumed, SessionID: session.ID, BookID: session.BookID, Page: session.CurrentPage, At: session.LastUpdated, Origin: session.Origin})
	if i.fanout != nil {
		i.fanout.SessionUpdated(ctx, session)
	}
	return i.describe(ctx, session, session.LastUpdated), nil
}

func (i *Interactor) AdjustPage(ctx context.Context, input dto.AdjustPageInput) (dto.SessionOutput, error) {
	current, err := i.svc.Current(ctx)
	if err != nil {
		return dto.SessionOutput{}, err
	}
	target := current.CurrentPage + input.Delta
	if input.Absolute {
		target = input.Page
	}
	totalPages := 0
	title := ""
	if book, berr := i.catalog.GetBook(ctx, current.BookID); berr == nil {
		totalPages = book.TotalPages
		title = book.Title
	}

	session, err := i.svc.SetPage(ctx, target, totalPages)
	if err != nil {
		return dto.SessionOutput{}, err
	}
	i.emit(domain.Event{Kind: domain.EventPageAdjusted, SessionID: session.ID, BookID: session.BookID, Page: session.CurrentPage, At: session.LastUpdated, Origin: session.Origin})
	if i.fanout != nil {
		// Rapid edits batch into one full-state send after the quiet period.
		snapshot := session
		i.debounce.Schedule(func() {
			i.fanout.SessionUpdated(context.Background(), snapshot)
		})
	}
	return i.sessionOutput(session, title, totalPages, session.LastUpdated), nil
}

func (i *Interactor) Finish(ctx context.Context, sessionID string) (dto.FinishOutput, error) {
	i.debounce.Cancel()
	result, err := i.svc.Finish(ctx, sessionID, i.policy)
	if err != nil {
		return dto.FinishOutput{}, err
	}
	if !result.Applied {
		return dto.FinishOutput{}, nil
	}

	completed := result.Completed
	i.emit(domain.Event{Kind: domain.EventFinished, SessionID: completed.ID, BookID: completed.BookID, Page: completed.EndPage, At: completed.EndedAt, Origin: completed.Origin})
	if i.fanout != nil {
		i.fanout.SessionEnded(ctx, completed)
		i.fanout.ProfileStats(ctx, result.Profile)
	}

	out := dto.FinishOutput{
		Applied: true,
		Session: completedOutput(completed),
		Profile: profileOutput(result.Profile),
	}
	for _, a := range result.Achievements {
		out.NewAchievements = append(out.NewAchievements, string(a))
	}
	return out, nil
}

func (i *Interactor) Discard(ctx context.Context, sessionID string) (dto.DiscardOutput, error) {
	i.debounce.Cancel()
	session, ok, err := i.svc.Discard(ctx, sessionID)
	if err != nil {
		return dto.DiscardOutput{}, err
	}
	if !ok {
		return dto.DiscardOutput{}, nil
	}
	i.emit(domain.Event{Kind: domain.EventDiscarded, SessionID: session.ID, BookID: session.BookID, Page: session.CurrentPage, At: session.LastUpdated, Origin: session.Origin})
	if i.fanout != nil {
		i.fanout.SessionDiscarded(ctx, session.ID)
	}
	return dto.DiscardOutput{Discarded: true, SessionID: session.ID}, nil
}

func (i *Interactor) Status(ctx context.Context) (dto.SessionOutput, error) {
	session, err := i.svc.Current(ctx)
	if err != nil {
		return dto.SessionOutput{}, err
	}
	return i.describe(ctx, session, i.clock.Now()), nil
}

func (i *Interactor) AutoExpire(ctx context.Context) (dto.ExpireOutput, error) {
	session, ok, err := i.svc.AutoExpire(ctx, i.threshold)
	if err != nil {
		return dto.ExpireOutput{}, err
	}
	if !ok {
		return dto.ExpireOutput{}, nil
	}
	i.emit(domain.Event{Kind: domain.EventExpired, SessionID: session.ID, BookID: session.BookID, Page: session.CurrentPage, At: session.LastUpdated, Origin: session.Origin})
	if i.fanout != nil {
		i.fanout.SessionDiscarded(ctx, session.ID)
	}
	return dto.ExpireOutput{Expired: true, SessionID: session.ID}, nil
}

func (i *Interactor) Profile(ctx context.Context) (dto.ProfileOutput, error) {
	profile, err := i.svc.Profile(ctx)
	if err != nil {
		return dto.ProfileOutput{}, err
	}
	return profileOutput(profile), nil
}

func (i *Interactor) History(ctx context.Context) ([]dto.CompletedOutput, error) {
	history, err := i.svc.History(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.CompletedOutput, 0, len(history))
	for _, completed := range history {
		out = append(out, completedOutput(completed))
	}
	return out, nil
}

func (i *Interactor) Recompute(ctx context.Context) (dto.ProfileOutput, error) {
	profile, err := i.svc.Recompute(ctx)
	if err != nil {
		return dto.ProfileOutput{}, err
	}
	if i.fanout != nil {
		i.fanout.ProfileStats(ctx, profile)
	}
	return profileOutput(profile), nil
}

func (i *Interactor) emit(event domain.Event) {
	for _, listener := range i.listeners {
		listener.HandleEvent(event)
	}
}

func (i *Interactor) describe(ctx context.Context, session domain.ActiveSession, now time.Time) dto.SessionOutput {
	title := ""
	totalPages := 0
	if book, err := i.catalog.GetBook(ctx, session.BookID); err == nil {
		title = book.Title
		totalPages = book.TotalPages
	}
	return i.sessionOutput(session, title, totalPages, now)
}

func (i *Interactor) sessionOutput(session domain.ActiveSession, title string, totalPages int, now time.Time) dto.SessionOutput {
	minutes := int(session.Elapsed(now).Minutes())
	return dto.SessionOutput{
		ID:          session.ID,
		BookID:      session.BookID,
		BookTitle:   title,
		StartPage:   session.StartPage,
		CurrentPage: session.CurrentPage,
		TotalPages:  totalPages,
		Paused:      session.Paused,
		StartedAt:   session.StartedAt,
		// The preview uses the same function as the finish path, so the
		// projected value always matches the final one for equal inputs.
		ElapsedMinutes:  minutes,
		ProjectedPoints: rewarddomain.Points(session.PagesRead(), minutes),
		Origin:          string(session.Origin),
	}
}

func completedOutput(completed domain.CompletedSession) dto.CompletedOutput {
	return dto.CompletedOutput{
		ID:              completed.ID,
		BookID:          completed.BookID,
		StartedAt:       completed.StartedAt,
		EndedAt:         completed.EndedAt,
		StartPage:       completed.StartPage,
		EndPage:         completed.EndPage,
		PagesRead:       completed.PagesRead,
		DurationMinutes: completed.DurationMinutes,
		PointsAwarded:   completed.PointsAwarded,
		Origin:          string(completed.Origin),
	}
}

func profileOutput(profile rewarddomain.Profile) dto.ProfileOutput {
	return dto.ProfileOutput{
		CurrentStreak: profile.CurrentStreak,
		LongestStreak: profile.LongestStreak,
		LastReadDate:  profile.LastReadDate,
		TotalPoints:   profile.TotalPoints,
		Level:         rewarddomain.Level(profile.TotalPoints),
	}
}
