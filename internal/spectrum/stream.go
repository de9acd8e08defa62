package spectrum

import "sync"

// StreamSource is a Source fed continuously from a channel of sample
// chunks, as delivered by a live microphone stream. It pumps the channel
// into an Analyser until closed.
type StreamSource struct {
	an        *Analyser
	done      chan struct{}
	closeOnce sync.Once
}

// NewStreamSource starts pumping samples into a new analyser. The pump
// stops when Close is called or samples is closed.
func NewStreamSource(samples <-chan []float32, cfg Config) (*StreamSource, error) {
	an, err := NewAnalyser(cfg)
	if err != nil {
		return nil, err
	}

	s := &StreamSource{
		an:   an,
		done: make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-s.done:
				return
			case chunk, ok := <-samples:
				if !ok {
					return
				}
				an.Feed(chunk)
			}
		}
	}()

	return s, nil
}

// Bins returns the number of samples per frame.
func (s *StreamSource) Bins() int { return s.an.Bins() }

// Fill copies the current magnitude spectrum into dst.
func (s *StreamSource) Fill(dst Frame) error { return s.an.Fill(dst) }

// Close stops the pump. Safe to call more than once.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
