package room

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrAlreadyJoined = errors.New("participant already in a room")
	ErrNotInRoom     = errors.New("participant not in a room")
	ErrRoutingMiss   = errors.New("target not in sender's room")
	ErrEmptyRoomID   = errors.New("room id is empty")
)

// Registry tracks which participants are in which room.
//
// The registry lock only guards the room map and the participant index.
// Membership changes of one room are serialized by that room's own lock. No
// room lock is ever waited on while the registry lock is held, so rooms never
// wait on each other for longer than an index lookup. Callbacks
// passed to Join, Leave and Route run while the room lock is held; they must
// not call back into the Registry.
type Registry struct {
	mu sync.Mutex

	// rooms maps room IDs to Room instances.
	rooms map[string]*Room

	// index maps participant IDs to the room they are in.
	index map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		index: make(map[string]string),
	}
}

// Join appends m to the room, creating the room if needed, and returns the
// members that were present before the insertion. deliver, if non-nil, is
// called with the same snapshot before the room is unlocked.
//
// A participant that is already in any room is rejected with ErrAlreadyJoined.
// Join and Leave for the same participant must not run concurrently.
func (r *Registry) Join(roomID string, m Member, deliver func(snapshot []Member)) ([]Member, error) {
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}

	r.mu.Lock()
	if current, ok := r.index[m.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyJoined, current)
	}
	r.index[m.ID] = roomID
	rm := r.liveRoomLocked(roomID, nil)
	r.mu.Unlock()

	// A concurrent Leave may empty and close the room before we lock it;
	// in that case swap in a fresh one.
	for {
		rm.mu.Lock()
		if !rm.closed {
			break
		}
		rm.mu.Unlock()

		r.mu.Lock()
		rm = r.liveRoomLocked(roomID, rm)
		r.mu.Unlock()
	}
	defer rm.mu.Unlock()

	snapshot := rm.snapshot()
	rm.members = append(rm.members, m)

	if deliver != nil {
		deliver(snapshot)
	}
	return snapshot, nil
}

// liveRoomLocked returns the room registered under roomID, creating it when
// it is missing or is the closed room stale. Must be called with r.mu held.
func (r *Registry) liveRoomLocked(roomID string, stale *Room) *Room {
	rm, ok := r.rooms[roomID]
	if !ok || rm == stale {
		rm = &Room{ID: roomID}
		r.rooms[roomID] = rm
	}
	return rm
}

// Leave removes the participant from whatever room it is in. deliver, if
// non-nil, is called with the remaining members while the room is still
// locked. The room is deleted once it becomes empty.
//
// Leaving twice is a no-op: ok is false and nothing is delivered.
func (r *Registry) Leave(participantID string, deliver func(remaining []Member)) (roomID string, remaining int, ok bool) {
	r.mu.Lock()
	roomID, ok = r.index[participantID]
	if !ok {
		r.mu.Unlock()
		return "", 0, false
	}
	delete(r.index, participantID)
	rm, found := r.rooms[roomID]
	r.mu.Unlock()
	if !found {
		return roomID, 0, true
	}

	rm.mu.Lock()
	if i := rm.indexOf(participantID); i >= 0 {
		rm.members = append(rm.members[:i], rm.members[i+1:]...)
	}
	remaining = len(rm.members)
	if remaining == 0 {
		rm.closed = true
	} else if deliver != nil {
		deliver(rm.snapshot())
	}
	rm.mu.Unlock()

	if remaining == 0 {
		r.mu.Lock()
		if r.rooms[roomID] == rm {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
	}
	return roomID, remaining, true
}

// LookupRoom returns the room the participant is currently in.
func (r *Registry) LookupRoom(participantID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.index[participantID]
	return roomID, ok
}

// Route checks that targetID is in the same room as fromID and calls deliver
// with the target member while the room is locked.
//
// It returns ErrNotInRoom if the sender has not joined a room and
// ErrRoutingMiss if the target is not a member of the sender's room.
func (r *Registry) Route(fromID, targetID string, deliver func(target Member)) error {
	r.mu.Lock()
	roomID, ok := r.index[fromID]
	if !ok {
		r.mu.Unlock()
		return ErrNotInRoom
	}
	if targetRoom, found := r.index[targetID]; !found || targetRoom != roomID || targetID == fromID {
		r.mu.Unlock()
		return ErrRoutingMiss
	}
	rm, found := r.rooms[roomID]
	r.mu.Unlock()
	if !found {
		return ErrRoutingMiss
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	i := rm.indexOf(targetID)
	if i < 0 {
		return ErrRoutingMiss
	}
	if deliver != nil {
		deliver(rm.members[i])
	}
	return nil
}

// Members returns the members of roomID in join order, or nil if the room
// does not exist.
func (r *Registry) Members(roomID string) []Member {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return nil
	}
	return rm.snapshot()
}

// Rooms returns every live room sorted by ID.
func (r *Registry) Rooms() []Info {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		if len(rm.members) > 0 {
			infos = append(infos, Info{ID: rm.ID, Members: rm.snapshot()})
		}
		rm.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
