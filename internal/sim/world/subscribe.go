package world

import (
	"context"

	"shelltown.ai/internal/observerproto"
	"shelltown.ai/internal/sim/broadcast"
)

// Subscribe registers an observer. Its first frame is a world_state event, and because
// registration happens on the loop no event can fall between that frame and the stream.
func (w *World) Subscribe(ctx context.Context) (*broadcast.Subscription, error) {
	var sub *broadcast.Subscription
	err := w.do(ctx, func() error {
		frame, err := observerproto.Encode(observerproto.TypeWorldState, observerproto.WorldState{
			Version:     observerproto.Version,
			Agents:      w.agentList(nil, 0),
			ChatHistory: w.chat.Last(w.tun.QueryChatLimit),
			Width:       w.grid.Width(),
			Height:      w.grid.Height(),
		})
		if err != nil {
			return errorf(ErrInternal.Code, "encode world_state: %v", err)
		}
		sub = w.hub.Subscribe(frame)
		return nil
	})
	return sub, err
}

func (w *World) Unsubscribe(sub *broadcast.Subscription) { w.hub.Unsubscribe(sub) }
