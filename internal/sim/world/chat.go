package world

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/protocol"
	"shelltown.ai/internal/sim/world/kernel/model"
	"shelltown.ai/internal/sim/world/logic/ids"
	"shelltown.ai/internal/sim/world/logic/movement"
	"shelltown.ai/internal/sim/world/logic/rates"
)

const (
	chatSocialBoost = 5
	relSpeakerGain  = 2
	relListenerGain = 1
	relMax          = 100
)

type ChatRequest struct {
	AgentID string
	Text    string
	To      string
}

// Chat stores a message, bumps relationships with every agent in hearing range and
// returns the message id.
func (w *World) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var id string
	err := w.do(ctx, func() error {
		var err error
		id, err = w.sendChat(req)
		return err
	})
	return id, err
}

func (w *World) sendChat(req ChatRequest) (string, error) {
	a, err := w.agent(req.AgentID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", errorf(protocol.ErrBadRequest, "message cannot be empty")
	}
	if n := utf8.RuneCountInString(req.Text); n > w.tun.Chat.MaxLen {
		return "", errorf(protocol.ErrBadRequest, "message too long (%d > %d chars)", n, w.tun.Chat.MaxLen)
	}
	now := w.now()
	if !w.limiter.Allow(a.ID, rates.KindChat, now) {
		w.stats.rateLimited.Add(1)
		return "", &Error{
			Code:       protocol.ErrRateLimit,
			Message:    "sending too fast, wait a moment",
			RetryAfter: w.limiter.Remaining(a.ID, rates.KindChat, now),
		}
	}

	a.LastSeen = now
	a.MessageCount++
	msg := model.ChatMessage{
		ID:        ids.Short(),
		FromID:    a.ID,
		FromName:  a.Name,
		FromEmoji: a.Emoji,
		Text:      req.Text,
		To:        req.To,
		Timestamp: now.UTC(),
		X:         a.X,
		Y:         a.Y,
	}
	w.chat.Push(msg)
	w.messages++
	w.stats.chats.Add(1)

	_, _ = a.Needs.Adjust(model.NeedSocial, chatSocialBoost)
	a.Activity = "chatting"
	w.hearChat(a)

	w.emit(observerproto.TypeChat, a, msg)
	w.log.Debug("chat", zap.String("agent_id", a.ID), zap.Int("len", len(req.Text)))

	if n := w.tun.Chat.SaveEveryN; n > 0 && a.MessageCount%n == 0 {
		w.hintSave()
	}
	return msg.ID, nil
}

func (w *World) hearChat(speaker *model.Agent) {
	for _, o := range w.agents {
		if o.ID == speaker.ID || movement.Manhattan(speaker.Pos(), o.Pos()) > w.tun.Chat.HearRadius {
			continue
		}
		if w.bumpRelationship(speaker.ID, o.ID, relSpeakerGain) >= w.tun.Chat.FriendAt {
			speaker.AddFriend(o.ID)
		}
		if w.bumpRelationship(o.ID, speaker.ID, relListenerGain) >= w.tun.Chat.FriendAt {
			o.AddFriend(speaker.ID)
		}
	}
}

func (w *World) bumpRelationship(from, to string, delta int) int {
	m := w.rel[from]
	if m == nil {
		m = map[string]int{}
		w.rel[from] = m
	}
	v := m[to] + delta
	if v > relMax {
		v = relMax
	}
	m[to] = v
	return v
}
