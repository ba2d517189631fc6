package room

import "sync"

// Member is a participant accepted into a room.
type Member struct {
	// ID is the relay-assigned participant ID, unique while connected.
	ID string `json:"id"`

	// Name is the display name supplied with the join request.
	Name string `json:"name"`
}

// Room represents a named group of members eligible to connect to one another.
type Room struct {
	// ID is the room identifier chosen by the participants.
	ID string

	mu sync.Mutex

	// members are kept in join order.
	members []Member

	// closed is set when the last member leaves; a closed room is never
	// reused.
	closed bool
}

func (r *Room) indexOf(id string) int {
	for i, m := range r.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) snapshot() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Info is a point-in-time view of a room, used by listings.
type Info struct {
	ID      string   `json:"id"`
	Members []Member `json:"members"`
}
