/**
 * Channel Hopping.
 *
 * Drives an adapter's SetChannel across a configured channel list on a
 * timer. Mirrors the C implementation's shuffle behavior: a
 * Fisher-Yates shuffle of the hop list reduces the chance two nearby
 * capture sources dwell on the same channel in lockstep, and
 * shuffle_spacing re-shuffles only every N hops rather than every hop
 * so the sequence doesn't look purely random run to run.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// maxConsecutiveFailures is the number of back-to-back SetChannel
// failures before the hopper gives up and asks the handler to spin
// down, per the capture-framework error-budget rule.
const maxConsecutiveFailures = 3

// ChannelHopper advances an adapter through a fixed channel list on an
// interval, optionally reshuffling the order periodically.
type ChannelHopper struct {
	channels     []string
	hopInterval  time.Duration
	shuffle      bool
	shuffleSpace int

	idx          int
	hopsSinceShuffle int
	rng          *rand.Rand
}

// NewChannelHopper builds a hopper. hopRate is in hops/sec (e.g. 5.0 ==
// 200ms/hop); zero or negative defaults to 1 hop/sec, matching the
// capture-framework default documented for --source channel-hop.
func NewChannelHopper(channels []string, hopRate float64, shuffle bool, shuffleSpacing int) (*ChannelHopper, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("capframework: channel hop list is empty")
	}
	if hopRate <= 0 {
		hopRate = 1.0
	}
	if shuffleSpacing <= 0 {
		shuffleSpacing = 1
	}
	cp := make([]string, len(channels))
	copy(cp, channels)
	return &ChannelHopper{
		channels:     cp,
		hopInterval:  time.Duration(float64(time.Second) / hopRate),
		shuffle:      shuffle,
		shuffleSpace: shuffleSpacing,
		rng:          rand.New(rand.NewSource(1)),
	}, nil
}

// fisherYates shuffles h.channels in place.
func (h *ChannelHopper) fisherYates() {
	for i := len(h.channels) - 1; i > 0; i-- {
		j := h.rng.Intn(i + 1)
		h.channels[i], h.channels[j] = h.channels[j], h.channels[i]
	}
}

// Next returns the next channel in the hop sequence. With shuffle
// enabled, the list is reshuffled at the start of a pass through it
// whenever the total number of hops so far is a multiple of shuffleSpace.
func (h *ChannelHopper) Next() string {
	if h.idx == 0 && h.shuffle && h.hopsSinceShuffle == 0 {
		h.fisherYates()
	}
	ch := h.channels[h.idx]
	h.idx = (h.idx + 1) % len(h.channels)
	h.hopsSinceShuffle++
	if h.hopsSinceShuffle >= h.shuffleSpace {
		h.hopsSinceShuffle = 0
	}
	return ch
}

// Run drives the hop loop until ctx is canceled, calling adapter's
// TranslateChannel/SetChannel each interval and asking sink to spin
// down after maxConsecutiveFailures consecutive TranslateChannel or
// SetChannel errors.
func (h *ChannelHopper) Run(ctx context.Context, adapter CaptureAdapter, sink FrameSink) error {
	ticker := time.NewTicker(h.hopInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if sink.SpindownRequested() {
				return nil
			}
			ch := h.Next()
			token, err := adapter.TranslateChannel(ctx, ch)
			if err != nil {
				failures++
			} else if token == nil {
				// Unrecognized channel: skip this hop without counting a failure.
			} else if err := adapter.SetChannel(ctx, token); err != nil {
				failures++
				_ = sink.SendWarning(fmt.Sprintf("channel set failed for %s: %v", ch, err))
			} else {
				failures = 0
			}

			if failures >= maxConsecutiveFailures {
				sink.Spindown(fmt.Sprintf("%d consecutive channel-set failures", failures))
				return fmt.Errorf("capframework: channel hopper exceeded failure budget")
			}
		}
	}
}
