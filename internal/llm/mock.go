package llm

import "context"

// MockClient is a scripted Client for tests. Generate returns Response (or
// Err); Stream delivers Chunks one at a time.
type MockClient struct {
	Response string
	Chunks   []string
	Err      error
	// LastMessages records the messages from the most recent call.
	LastMessages []Message
}

// Generate returns the scripted response.
func (m *MockClient) Generate(ctx context.Context, messages []Message) (string, error) {
	m.LastMessages = messages
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Stream delivers the scripted chunks and closes.
func (m *MockClient) Stream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	m.LastMessages = messages
	out := make(chan string)
	errCh := make(chan error, 1)
	if m.Err != nil {
		close(out)
		errCh <- m.Err
		return out, errCh
	}
	go func() {
		defer close(out)
		for _, chunk := range m.Chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errCh
}

// Close is a no-op.
func (m *MockClient) Close() error {
	return nil
}
