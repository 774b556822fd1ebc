package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/email"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantstore"
)

// noteCreated is queued by createNote. The tenant travels as a stamp, not in
// the payload.
type noteCreated struct {
	NoteID    uuid.UUID `json:"note_id"`
	Recipient string    `json:"recipient"`
}

type noteReader interface {
	Get(ctx context.Context, id uuid.UUID) (*tenantstore.Note, error)
}

// deliveries records sent notifications per tenant. redis.Scoped satisfies it.
type deliveries interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, exp time.Duration) error
}

const deliveryMarkTTL = 24 * time.Hour

// notifyNoteCreated emails the recipient through the tenant's own mailer when
// it has one. Tasks whose tenant or note is gone are dropped, since retrying
// cannot help. With sent set, a task retried after a successful send (e.g. its
// transaction failed to commit) does not email twice; nil sent disables that.
func notifyNoteCreated(notes noteReader, mailer email.EmailSender, sent deliveries, log *slog.Logger) queue.TaskHandlerFunc[noteCreated] {
	return func(ctx context.Context, p noteCreated) error {
		t, ok := tenant.FromContext(ctx)
		if !ok {
			log.WarnContext(ctx, "dropping note notification without tenant",
				slog.String("note_id", p.NoteID.String()))
			return nil
		}

		note, err := notes.Get(ctx, p.NoteID)
		if errors.Is(err, tenantstore.ErrNoteNotFound) {
			log.WarnContext(ctx, "dropping notification for deleted note",
				slog.String("note_id", p.NoteID.String()))
			return nil
		}
		if err != nil {
			return err
		}

		mark := "note-notified:" + p.NoteID.String() + ":" + p.Recipient
		if sent != nil {
			v, err := sent.Get(ctx, mark)
			if err != nil {
				log.WarnContext(ctx, "failed to read delivery mark", logger.Error(err))
			} else if v != nil {
				log.DebugContext(ctx, "note notification already sent",
					slog.String("note_id", p.NoteID.String()))
				return nil
			}
		}

		if err := mailer.SendEmail(ctx, email.SendEmailParams{
			SendTo:   p.Recipient,
			Subject:  fmt.Sprintf("New note in %s", t.Name),
			BodyHTML: "<p>" + html.EscapeString(note.Body) + "</p>",
			Tag:      "note-created",
		}); err != nil {
			return err
		}

		if sent != nil {
			if err := sent.Set(ctx, mark, []byte(time.Now().UTC().Format(time.RFC3339)), deliveryMarkTTL); err != nil {
				log.WarnContext(ctx, "failed to record delivery mark", logger.Error(err))
			}
		}
		return nil
	}
}
