package speech

import (
	"fmt"
	"sync"
)

// maxClipsPerSession caps retained audio per session; the oldest clip is
// evicted when the cap is reached.
const maxClipsPerSession = 64

// AudioStore keeps synthesized audio in memory, keyed by session and turn
// sequence. Turns carry only the reference; handlers fetch bytes on
// demand.
type AudioStore struct {
	mu    sync.Mutex
	clips map[string][]byte
	order map[string][]string
}

// NewAudioStore builds an empty store.
func NewAudioStore() *AudioStore {
	return &AudioStore{
		clips: make(map[string][]byte),
		order: make(map[string][]string),
	}
}

// Put stores one clip and returns its reference.
func (a *AudioStore) Put(sessionID string, seq int, audio []byte) string {
	ref := fmt.Sprintf("%s/%d", sessionID, seq)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.clips[ref]; !exists {
		keys := a.order[sessionID]
		if len(keys) >= maxClipsPerSession {
			delete(a.clips, keys[0])
			keys = keys[1:]
		}
		a.order[sessionID] = append(keys, ref)
	}
	a.clips[ref] = audio
	return ref
}

// Get fetches one clip's bytes.
func (a *AudioStore) Get(sessionID string, seq int) ([]byte, bool) {
	ref := fmt.Sprintf("%s/%d", sessionID, seq)

	a.mu.Lock()
	defer a.mu.Unlock()
	audio, ok := a.clips[ref]
	return audio, ok
}

// Drop releases every clip held for the session.
func (a *AudioStore) Drop(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ref := range a.order[sessionID] {
		delete(a.clips, ref)
	}
	delete(a.order, sessionID)
}
