package model

// Snapshot is the durable record: every conversation's registry state, keyed
// by conversation ID. Each save writes the whole snapshot, so the last writer
// wins without partial corruption.
type Snapshot map[string]*ConversationState

// Clone returns a shallow-independent copy safe to hand to a store while the
// registry keeps mutating its own maps.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for conv, state := range s {
		cs := &ConversationState{
			Accounts: append([]*Account(nil), state.Accounts...),
		}
		if len(state.Disabled) > 0 {
			cs.Disabled = make(map[int][]string, len(state.Disabled))
			for id, cals := range state.Disabled {
				cs.Disabled[id] = append([]string(nil), cals...)
			}
		}
		out[conv] = cs
	}
	return out
}
