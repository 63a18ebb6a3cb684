package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Austin-rgb/messages/internal/event"
	"github.com/Austin-rgb/messages/internal/eventlog"
	"github.com/Austin-rgb/messages/internal/store"
	"github.com/Austin-rgb/messages/pkg/metrics"
)

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req struct {
		Name         string   `json:"name"`
		Title        string   `json:"title"`
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	conv, err := s.rt.Store.CreateConversation(r.Context(), req.Name, req.Title, user, req.Participants)
	if errors.Is(err, store.ErrConversationExists) {
		s.writeError(w, http.StatusConflict, "conversation already exists")
		return
	}
	if err != nil {
		s.log.Error("create conversation", zap.String("name", req.Name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.rt.Resolver.Invalidate(req.Name)
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	convs, err := s.rt.Store.ListConversations(r.Context(), user)
	if err != nil {
		s.log.Error("list conversations", zap.String("user", user), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	s.writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	name := mux.Vars(r)["name"]

	// non-members get the same answer as a missing conversation
	ok, err := s.rt.Store.IsParticipant(r.Context(), name, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	conv, err := s.rt.Store.GetConversation(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

// handleAddParticipant grows the member set. Only the admin may add members;
// the resolver cache is invalidated so the next fan-out sees the new member.
func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	name := mux.Vars(r)["name"]

	conv, err := s.rt.Store.GetConversation(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if conv.Admin != user {
		s.writeError(w, http.StatusForbidden, "only the admin can add participants")
		return
	}

	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		s.writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	if err := s.rt.Store.AddParticipant(r.Context(), name, req.User); err != nil {
		s.log.Error("add participant", zap.String("conversation", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.rt.Resolver.Invalidate(name)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSendMessage accepts the message, appends it durably, and returns 202
// before persistence: acceptance is the append, not the SQLite row.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	name := mux.Vars(r)["name"]

	ok, err := s.rt.Store.IsParticipant(r.Context(), name, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		s.writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	var req struct {
		Text    string `json:"text"`
		ReplyTo string `json:"reply_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if req.ReplyTo != "" {
		parent, err := s.rt.Store.GetMessage(r.Context(), req.ReplyTo)
		if errors.Is(err, store.ErrNotFound) || (err == nil && parent.Conversation != name) {
			s.writeError(w, http.StatusUnprocessableEntity, "reply_to must reference a message in this conversation")
			return
		}
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	msg := event.Message{
		ID:           uuid.NewString(),
		Conversation: name,
		Source:       user,
		Text:         req.Text,
		ReplyTo:      req.ReplyTo,
		CreatedMs:    time.Now().UnixMilli(),
	}
	env := event.Envelope{Kind: event.KindMessageCreated, Message: &msg}
	payload, err := event.Encode(env)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// the durable append is the acceptance point; if it fails the message
	// was not accepted
	if _, err := s.rt.Messages.Append(r.Context(), env.PartitionKey(), payload); err != nil {
		s.log.Error("append message", zap.String("conversation", name), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "message not accepted")
		return
	}
	metrics.EventsAppended.WithLabelValues(eventlog.MessagesStream).Inc()

	// live push happens off the request path
	go s.rt.Router.Deliver(context.Background(), env)

	s.writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	name := mux.Vars(r)["name"]

	ok, err := s.rt.Store.IsParticipant(r.Context(), name, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		s.writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	q := r.URL.Query()
	filter := store.MessageFilter{
		Source:  q.Get("source"),
		ReplyTo: q.Get("reply_to"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	msgs, err := s.rt.Store.Messages(r.Context(), name, filter)
	if err != nil {
		s.log.Error("read history", zap.String("conversation", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msgs == nil {
		msgs = []event.Message{}
	}

	// reading history counts as delivery for every returned message; done
	// off the request path so a busy receipts stream cannot slow reads
	go func(msgs []event.Message) {
		ctx := context.Background()
		for _, m := range msgs {
			if err := s.rt.Tracker.MarkDelivered(ctx, m, user); err != nil {
				s.log.Warn("mark delivered from history",
					zap.String("message", m.ID), zap.String("user", user), zap.Error(err))
			}
		}
	}(msgs)

	s.writeJSON(w, http.StatusOK, msgs)
}

// handleReceipts returns per-recipient state for a message, visible to its
// sender only. Anyone else gets a 404 rather than a hint the message exists.
func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	msgID := mux.Vars(r)["msg"]

	ok, err := s.rt.Store.IsSender(r.Context(), msgID, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "message not found")
		return
	}

	receipts, err := s.rt.Store.Receipts(r.Context(), msgID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if receipts == nil {
		receipts = []store.Receipt{}
	}
	s.writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	msgID := mux.Vars(r)["msg"]

	if !s.requireRecipient(w, r, msgID, user) {
		return
	}
	if err := s.rt.Tracker.MarkRead(r.Context(), msgID, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "message not found")
			return
		}
		s.log.Error("mark read", zap.String("message", msgID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	vars := mux.Vars(r)
	msgID := vars["msg"]

	reaction, err := strconv.ParseInt(vars["reaction"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reaction must be an integer")
		return
	}
	if !s.requireRecipient(w, r, msgID, user) {
		return
	}
	if err := s.rt.Tracker.SetReaction(r.Context(), msgID, user, reaction); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "message not found")
			return
		}
		s.log.Error("set reaction", zap.String("message", msgID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireRecipient checks that the message exists and the user belongs to
// its conversation. On failure it writes the response and returns false.
func (s *Server) requireRecipient(w http.ResponseWriter, r *http.Request, msgID, user string) bool {
	msg, err := s.rt.Store.GetMessage(r.Context(), msgID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "message not found")
		return false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	ok, err := s.rt.Store.IsParticipant(r.Context(), msg.Conversation, user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if !ok {
		s.writeError(w, http.StatusForbidden, "not a participant")
		return false
	}
	return true
}
