// Package services – MessageService
//
// This file implements the message store and read-state manager. Send, Edit,
// Delete and MarkRead each run in one transaction; the side effects that the
// data model requires (receipts on send, a history row on edit) are written
// explicitly inside that transaction. Notifications are dispatched after the
// send commits and never roll it back.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/message/user identifiers where applicable.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/access"
	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/search"
	"github.com/tbourn/go-messaging-core/internal/utils"
)

const (
	// DefaultMaxBodyRunes is used when MessageService.MaxBodyRunes is zero.
	DefaultMaxBodyRunes = 1000

	// defaultIdempotencyTTL bounds how long a send key replays its message.
	defaultIdempotencyTTL = 24 * time.Hour

	// searchCandidates caps the messages ranked by Search.
	searchCandidates = 5000

	// maxThreadDepth bounds Thread expansion.
	maxThreadDepth = 64
)

// Dispatcher fans a freshly committed message out to its recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, m *domain.Message, recipientIDs []string) int
}

// MessageService coordinates message persistence, edits and read state.
type MessageService struct {
	DB *gorm.DB

	// MaxBodyRunes caps message bodies (after NFC normalization).
	MaxBodyRunes int

	// Notifier receives every committed send. Nil disables notifications.
	Notifier Dispatcher

	// IdempotencyTTL overrides defaultIdempotencyTTL when positive.
	IdempotencyTTL time.Duration

	now func() time.Time
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, maxBodyRunes int, notifier Dispatcher) *MessageService {
	return &MessageService{DB: db, MaxBodyRunes: maxBodyRunes, Notifier: notifier}
}

func (s *MessageService) tracer() trace.Tracer { return otel.Tracer("services/MessageService") }

func (s *MessageService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *MessageService) maxRunes() int {
	if s.MaxBodyRunes > 0 {
		return s.MaxBodyRunes
	}
	return DefaultMaxBodyRunes
}

// normalizeBody applies NFC and trims surrounding whitespace, then checks
// the body is non-empty and within the rune limit.
func (s *MessageService) normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(norm.NFC.String(body))
	if body == "" {
		return "", validationf("body must not be empty")
	}
	if limit := s.maxRunes(); utf8.RuneCountInString(body) > limit {
		return "", validationf("body exceeds %d characters", limit)
	}
	return body, nil
}

// Send posts body into a conversation as actor, optionally replying to
// parentID. Every other participant gets an unread receipt in the same
// transaction; notifications follow the commit.
func (s *MessageService) Send(ctx context.Context, actor domain.User, conversationID, body string, parentID *string) (*domain.Message, error) {
	m, _, err := s.SendIdempotent(ctx, actor, conversationID, body, parentID, "")
	return m, err
}

// SendIdempotent is Send with an optional idempotency key. When key is
// non-empty and a live record exists for (actor, conversation, key), the
// recorded message is returned with replayed=true and nothing is written.
func (s *MessageService) SendIdempotent(ctx context.Context, actor domain.User, conversationID, body string, parentID *string, key string) (m *domain.Message, replayed bool, err error) {
	ctx, span := s.tracer().Start(ctx, "Send", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
		attribute.Bool("idempotent", key != ""),
	))
	defer span.End()

	if key != "" {
		// A replay is still a send: a removed member gets no copy back.
		if err := authorizeConversation(ctx, s.DB, actor, conversationID, access.SendMessage); err != nil {
			return nil, false, storageErr(err)
		}
		if prev, ok := s.replay(ctx, actor.ID, conversationID, key); ok {
			span.SetAttributes(attribute.Bool("replayed", true))
			return prev, true, nil
		}
	}

	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}

	var (
		created    *domain.Message
		recipients []string
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := authorizeConversation(ctx, tx, actor, conversationID, access.SendMessage); err != nil {
			return err
		}
		var err error
		if body, err = s.normalizeBody(body); err != nil {
			return err
		}
		if parentID != nil {
			parent, err := repo.GetMessage(ctx, tx, *parentID)
			if errors.Is(err, repo.ErrNotFound) || (err == nil && parent.ConversationID != conversationID) {
				return validationf("parent message %s is not in this conversation", *parentID)
			}
			if err != nil {
				return err
			}
		}

		seq, err := repo.NextSeq(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		msg, err := repo.CreateMessage(ctx, tx, repo.NewMessage{
			ConversationID: conversationID,
			SenderID:       actor.ID,
			ParentID:       parentID,
			Body:           body,
			SentAt:         s.clock(),
			Seq:            seq,
		})
		if err != nil {
			return err
		}

		members, err := repo.ListParticipantIDs(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		for _, id := range members {
			if id != actor.ID {
				recipients = append(recipients, id)
			}
		}
		if err := repo.CreateReceipts(ctx, tx, msg.ID, recipients); err != nil {
			return err
		}

		if key != "" {
			ttl := s.IdempotencyTTL
			if ttl <= 0 {
				ttl = defaultIdempotencyTTL
			}
			if _, err := repo.CreateIdempotency(ctx, tx, actor.ID, conversationID, key, msg.ID, http.StatusCreated, ttl); err != nil {
				return err
			}
		}
		created = msg
		return nil
	})
	if err != nil {
		// A concurrent request with the same key won the insert race.
		if key != "" && errors.Is(err, repo.ErrDuplicate) {
			if prev, ok := s.replay(ctx, actor.ID, conversationID, key); ok {
				return prev, true, nil
			}
		}
		return nil, false, storageErr(err)
	}

	messagesSent.Inc()
	span.SetAttributes(attribute.String("message.id", created.ID), attribute.Int("recipients", len(recipients)))
	if s.Notifier != nil {
		s.Notifier.Dispatch(ctx, created, recipients)
	}
	return created, false, nil
}

func (s *MessageService) replay(ctx context.Context, userID, conversationID, key string) (*domain.Message, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, key, s.clock())
	if err != nil {
		return nil, false
	}
	prev, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, false
	}
	return prev, true
}

// Edit replaces the body of a message. Only the sender may edit. An
// unchanged body (after normalization) is a no-op. Otherwise the pre-edit
// body is appended to the history and the message is updated, guarded by its
// version: a concurrent edit or a non-zero expectedVersion that does not
// match yields ErrConflict.
func (s *MessageService) Edit(ctx context.Context, actor domain.User, messageID, newBody string, expectedVersion int) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "Edit", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("message.id", messageID),
		attribute.Int("expected_version", expectedVersion),
	))
	defer span.End()

	var (
		out     *domain.Message
		changed bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if !access.Can(actor, access.EditMessage, access.Target{Sender: m.SenderID == actor.ID}) {
			return permissionf("only the sender may edit message %s", messageID)
		}
		body, err := s.normalizeBody(newBody)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && expectedVersion != m.Version {
			return conflictf("message %s is at version %d, not %d", messageID, m.Version, expectedVersion)
		}
		if m.Body == body {
			out = m
			return nil
		}

		prevSave := m.SentAt
		if m.EditedAt != nil {
			prevSave = *m.EditedAt
		}
		if _, err := repo.AppendHistory(ctx, tx, m.ID, m.Body, actor.ID, prevSave); err != nil {
			return err
		}
		err = repo.UpdateMessageBody(ctx, tx, m.ID, m.Version, repo.EditMessage{
			Body:     body,
			EditorID: actor.ID,
			EditedAt: s.clock(),
		})
		if errors.Is(err, repo.ErrVersionConflict) {
			return conflictf("message %s was modified concurrently", messageID)
		}
		if err != nil {
			return err
		}
		out, err = repo.GetMessage(ctx, tx, m.ID)
		changed = true
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if changed {
		messageEdits.Inc()
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	return out, nil
}

// Delete hard-deletes a message together with its history, receipts and
// notifications. Only the sender may delete; replies survive detached.
func (s *MessageService) Delete(ctx context.Context, actor domain.User, messageID string) error {
	ctx, span := s.tracer().Start(ctx, "Delete", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("message.id", messageID),
	))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if !access.Can(actor, access.DeleteMessage, access.Target{Sender: m.SenderID == actor.ID}) {
			return permissionf("only the sender may delete message %s", messageID)
		}
		return repo.DeleteMessage(ctx, tx, m.ID)
	})
	return storageErr(err)
}

// MarkRead marks the actor's receipts for messageIDs as read and returns how
// many flipped from unread. Unknown ids, messages in conversations the actor
// does not belong to and the actor's own messages are skipped. The actor's
// notifications for those messages are marked read too, and a message whose
// receipts are all read gets Read=true.
func (s *MessageService) MarkRead(ctx context.Context, actor domain.User, messageIDs []string) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "MarkRead", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.Int("requested", len(messageIDs)),
	))
	defer span.End()

	ids := dedupeIDs(messageIDs)
	if len(ids) == 0 || actor.ID == "" {
		return 0, nil
	}

	var flipped int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msgs, err := repo.GetMessages(ctx, tx, ids)
		if err != nil {
			return err
		}
		member := map[string]bool{}
		allowed := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ok, seen := member[m.ConversationID]
			if !seen {
				if ok, err = repo.IsParticipant(ctx, tx, m.ConversationID, actor.ID); err != nil {
					return err
				}
				member[m.ConversationID] = ok
			}
			if access.Can(actor, access.MarkRead, access.Target{Participant: ok}) {
				allowed = append(allowed, m.ID)
			}
		}
		if len(allowed) == 0 {
			return nil
		}

		if flipped, err = repo.MarkReceiptsRead(ctx, tx, actor.ID, allowed, s.clock()); err != nil {
			return err
		}
		if _, err := repo.MarkNotificationsReadForMessages(ctx, tx, actor.ID, allowed); err != nil {
			return err
		}
		if flipped > 0 {
			_, err = repo.MarkMessagesReadIfComplete(ctx, tx, allowed)
		}
		return err
	})
	if err != nil {
		return 0, storageErr(err)
	}
	span.SetAttributes(attribute.Int64("flipped", flipped))
	return flipped, nil
}

// Unread returns a page of messages the actor has not read yet, oldest first.
func (s *MessageService) Unread(ctx context.Context, actor domain.User, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := s.tracer().Start(ctx, "Unread", trace.WithAttributes(attribute.String("user.id", actor.ID)))
	defer span.End()

	if actor.ID == "" {
		return nil, 0, permissionf("authentication required")
	}
	offset, limit := utils.Normalize(page, pageSize)
	items, total, err := repo.ListUnread(ctx, s.DB, actor.ID, offset, limit)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return items, total, nil
}

// UnreadCount returns how many messages the actor has not read yet.
func (s *MessageService) UnreadCount(ctx context.Context, actor domain.User) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "UnreadCount", trace.WithAttributes(attribute.String("user.id", actor.ID)))
	defer span.End()

	if actor.ID == "" {
		return 0, permissionf("authentication required")
	}
	n, err := repo.CountUnread(ctx, s.DB, actor.ID)
	return n, storageErr(err)
}

// Get returns one message. Members of its conversation only.
func (s *MessageService) Get(ctx context.Context, actor domain.User, messageID string) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("message.id", messageID),
	))
	defer span.End()

	m, err := s.readable(ctx, actor, messageID, access.ReadMessage)
	if err != nil {
		return nil, storageErr(err)
	}
	return m, nil
}

// History returns the edit history of a message, newest first. The sender
// and members of the message's conversation may read it.
func (s *MessageService) History(ctx context.Context, actor domain.User, messageID string) ([]domain.MessageHistory, error) {
	ctx, span := s.tracer().Start(ctx, "History", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("message.id", messageID),
	))
	defer span.End()

	m, err := s.readable(ctx, actor, messageID, access.ReadHistory)
	if err != nil {
		return nil, storageErr(err)
	}
	hs, err := repo.ListHistory(ctx, s.DB, m.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	return hs, nil
}

// ThreadNode is a message with its nested replies.
type ThreadNode struct {
	Message domain.Message `json:"message"`
	Replies []*ThreadNode  `json:"replies"`
}

// Thread returns messageID with all replies below it, each level ordered by
// send time. Members of the conversation only.
func (s *MessageService) Thread(ctx context.Context, actor domain.User, messageID string) (*ThreadNode, error) {
	ctx, span := s.tracer().Start(ctx, "Thread", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("message.id", messageID),
	))
	defer span.End()

	root, err := s.readable(ctx, actor, messageID, access.ReadMessage)
	if err != nil {
		return nil, storageErr(err)
	}

	top := &ThreadNode{Message: *root, Replies: []*ThreadNode{}}
	level := map[string]*ThreadNode{root.ID: top}
	seen := map[string]bool{root.ID: true}
	for depth := 0; len(level) > 0 && depth < maxThreadDepth; depth++ {
		parents := make([]string, 0, len(level))
		for id := range level {
			parents = append(parents, id)
		}
		replies, err := repo.ListReplies(ctx, s.DB, parents)
		if err != nil {
			return nil, storageErr(err)
		}
		next := make(map[string]*ThreadNode, len(replies))
		for _, r := range replies {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			n := &ThreadNode{Message: r, Replies: []*ThreadNode{}}
			p := level[*r.ParentID]
			p.Replies = append(p.Replies, n)
			next[r.ID] = n
		}
		level = next
	}
	return top, nil
}

// SearchHit is a ranked message.
type SearchHit struct {
	Message domain.Message `json:"message"`
	Score   float64        `json:"score"`
}

// Search ranks the conversation's messages against query by token overlap
// and returns up to k hits. Members only.
func (s *MessageService) Search(ctx context.Context, actor domain.User, conversationID, query string, k int) ([]SearchHit, error) {
	ctx, span := s.tracer().Start(ctx, "Search", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
		attribute.Int("k", k),
	))
	defer span.End()

	query = strings.TrimSpace(norm.NFC.String(query))
	if query == "" {
		return nil, validationf("query must not be empty")
	}
	if err := authorizeConversation(ctx, s.DB, actor, conversationID, access.ReadConversation); err != nil {
		return nil, storageErr(err)
	}

	msgs, err := repo.ListConversationMessages(ctx, s.DB, conversationID, searchCandidates)
	if err != nil {
		return nil, storageErr(err)
	}
	docs := make([]search.Doc, len(msgs))
	byID := make(map[string]domain.Message, len(msgs))
	for i, m := range msgs {
		docs[i] = search.Doc{ID: m.ID, Text: m.Body}
		byID[m.ID] = m
	}

	results := search.New(docs).TopK(query, k)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Message: byID[r.ID], Score: r.Score})
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// readable loads a message and checks action against the actor's membership
// in its conversation and ownership of the message.
func (s *MessageService) readable(ctx context.Context, actor domain.User, messageID string, action access.Action) (*domain.Message, error) {
	m, err := loadMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	member, err := repo.IsParticipant(ctx, s.DB, m.ConversationID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, action, access.Target{Participant: member, Sender: m.SenderID == actor.ID}) {
		return nil, permissionf("%s denied for message %s", action, messageID)
	}
	return m, nil
}

func loadMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("message")
	}
	return m, err
}
