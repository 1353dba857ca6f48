package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
)

// MessageStream delivers text deltas over a bounded channel while a
// streaming message call is in flight. The producer goroutine stops as
// soon as the context is canceled; Wait returns the accumulated response
// (usage, stop reason) once the stream ends.
type MessageStream struct {
	deltas chan string
	done   chan struct{}
	resp   *MessageResponse
	err    error
}

// Deltas returns the channel of incremental text chunks. It is closed when
// the stream ends, whether normally, by error, or by cancellation.
func (s *MessageStream) Deltas() <-chan string {
	return s.deltas
}

// Wait blocks until the stream has finished and returns the final
// accumulated response. The response is nil if the stream failed before
// completion.
func (s *MessageStream) Wait() (*MessageResponse, error) {
	<-s.done
	return s.resp, s.err
}

func (c *sdkClient) StreamMessage(ctx context.Context, req MessageRequest, buffer int) (*MessageStream, error) {
	if buffer <= 0 {
		buffer = 16
	}

	stream := c.client.Messages.NewStreaming(ctx, toSDKParams(req))
	if err := stream.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: start stream")
	}

	ms := &MessageStream{
		deltas: make(chan string, buffer),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(ms.done)
		defer close(ms.deltas)
		defer stream.Close()

		acc := sdk.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				ms.err = eris.Wrap(err, "anthropic: accumulate stream event")
				return
			}

			switch eventVariant := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case sdk.TextDelta:
					if deltaVariant.Text == "" {
						continue
					}
					select {
					case ms.deltas <- deltaVariant.Text:
					case <-ctx.Done():
						ms.err = ctx.Err()
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			ms.err = eris.Wrap(err, "anthropic: stream")
			return
		}
		ms.resp = fromSDKMessage(&acc)
	}()

	return ms, nil
}
