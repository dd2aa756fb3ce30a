package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const appointmentSlot = time.Hour

// CredentialSource loads and saves per-namespace OAuth material. Satisfied
// by the storage layer.
type CredentialSource interface {
	GetCalendarCredential(ctx context.Context, namespace string) (types.CalendarCredential, bool, error)
	SaveCalendarCredential(ctx context.Context, cred types.CalendarCredential) error
}

// GoogleBooker books appointments into Google Calendar
type GoogleBooker struct {
	creds  CredentialSource
	logger zerolog.Logger
}

// NewGoogleBooker creates a Google Calendar booker
func NewGoogleBooker(creds CredentialSource, logger zerolog.Logger) *GoogleBooker {
	return &GoogleBooker{creds: creds, logger: logger}
}

// Book inserts a calendar event for the action and returns the created
// event id. Refreshed OAuth tokens are written back to the credential
// source so the next booking does not repeat the refresh.
func (b *GoogleBooker) Book(ctx context.Context, namespace string, action types.ScheduledAction) (string, error) {
	if action.ScheduledTime == nil {
		return "", ErrNoScheduledTime
	}

	cred, found, err := b.creds.GetCalendarCredential(ctx, namespace)
	if err != nil {
		return "", fmt.Errorf("failed to load calendar credential: %w", err)
	}
	if !found {
		return "", ErrNoCredential
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       strings.Fields(cred.Scopes),
	}
	token := &oauth2.Token{
		AccessToken:  cred.Token,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.TokenExpiry,
	}
	source := conf.TokenSource(ctx, token)

	svc, err := gcal.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, source)))
	if err != nil {
		return "", fmt.Errorf("failed to create calendar service: %w", err)
	}

	created, err := svc.Events.Insert("primary", buildEvent(action)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert calendar event: %w", err)
	}

	b.saveRefreshedToken(ctx, cred, source)

	b.logger.Info().
		Str("namespace", namespace).
		Str("action_id", action.ActionID).
		Str("event_id", created.Id).
		Msg("appointment booked")
	return created.Id, nil
}

// buildEvent maps a scheduled action onto a calendar event
func buildEvent(action types.ScheduledAction) *gcal.Event {
	start := *action.ScheduledTime
	end := start.Add(appointmentSlot)

	summary := action.IssueType
	if summary == "" {
		summary = "Appointment"
	}
	if action.CustomerName != "" {
		summary = summary + " - " + action.CustomerName
	}

	var details []string
	if action.CustomerName != "" {
		details = append(details, "Customer: "+action.CustomerName)
	}
	if action.CustomerPhone != "" {
		details = append(details, "Phone: "+action.CustomerPhone)
	}
	details = append(details, "Call: "+action.CallID)

	return &gcal.Event{
		Summary:     summary,
		Description: strings.Join(details, "\n"),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
}

func (b *GoogleBooker) saveRefreshedToken(ctx context.Context, cred types.CalendarCredential, source oauth2.TokenSource) {
	refreshed, err := source.Token()
	if err != nil || refreshed.AccessToken == cred.Token {
		return
	}

	cred.Token = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		cred.RefreshToken = refreshed.RefreshToken
	}
	cred.TokenExpiry = refreshed.Expiry
	cred.UpdatedAt = time.Now()

	if err := b.creds.SaveCalendarCredential(ctx, cred); err != nil {
		b.logger.Warn().Err(err).Str("namespace", cred.Namespace).Msg("failed to save refreshed calendar token")
	}
}
