package violation

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Source is a host-specific producer of raw focus/visibility signals.
type Source interface {
	Run(ctx context.Context, sink HostSignal) error
}

// ChannelSource forwards raw signals pushed by a native wrapper.
type ChannelSource struct {
	Signals <-chan model.Signal
}

// Run forwards signals until ctx is done or the channel closes.
func (s ChannelSource) Run(ctx context.Context, sink HostSignal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-s.Signals:
			if !ok {
				return nil
			}
			sink.OnSuspiciousActivity(sig.Reason())
		}
	}
}
