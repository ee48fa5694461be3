package net

// SessionStore tracks every live session, joined or not.
// Mutated only from the input phase of the tick loop.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (st *SessionStore) Add(s *Session) {
	st.sessions[s.ID] = s
}

func (st *SessionStore) Remove(id uint64) {
	delete(st.sessions, id)
}

func (st *SessionStore) Get(id uint64) *Session {
	return st.sessions[id]
}

func (st *SessionStore) Count() int {
	return len(st.sessions)
}

// Raw exposes the underlying map for iteration.
func (st *SessionStore) Raw() map[uint64]*Session {
	return st.sessions
}

// Snapshot returns the sessions as a slice, for data-parallel phases.
func (st *SessionStore) Snapshot() []*Session {
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
