package events

import (
	"context"
	"encoding/json"
	"errors"
)

// Broadcaster pushes raw frames to live subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg []byte) error
}

// BroadcastPublisher encodes events as JSON frames for a Broadcaster.
type BroadcastPublisher struct {
	target Broadcaster
}

// NewBroadcastPublisher constructs a BroadcastPublisher.
func NewBroadcastPublisher(target Broadcaster) *BroadcastPublisher {
	return &BroadcastPublisher{target: target}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, event OrderEvent) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.target.Broadcast(ctx, frame)
}

// Fanout publishes every event to each publisher, joining their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
