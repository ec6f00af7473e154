package hyi

// Sequencer hands out the team id and packet counter for each outbound frame.
// The counter wraps at 256. A Sequencer belongs to a single connection and is
// not safe for concurrent use; callers that share one must serialise access.
type Sequencer struct {
	teamID  byte
	counter byte
}

// NewSequencer returns a sequencer for teamID with the counter at zero.
func NewSequencer(teamID byte) *Sequencer {
	return &Sequencer{teamID: teamID}
}

// Next returns the current team id and counter, then advances the counter.
func (s *Sequencer) Next() (teamID, counter byte) {
	teamID, counter = s.teamID, s.counter
	s.counter++
	return teamID, counter
}

// Current returns the values the next call to Next would return.
func (s *Sequencer) Current() (teamID, counter byte) {
	return s.teamID, s.counter
}

// Reset sets the team id and zeroes the counter.
func (s *Sequencer) Reset(teamID byte) {
	s.teamID = teamID
	s.counter = 0
}
