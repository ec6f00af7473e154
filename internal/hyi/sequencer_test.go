package hyi

import "testing"

func TestSequencer_Wraparound(t *testing.T) {
	s := NewSequencer(17)

	for i := 0; i < 256; i++ {
		team, counter := s.Next()
		if team != 17 {
			t.Fatalf("call %d: team = %d, want 17", i, team)
		}
		if int(counter) != i {
			t.Fatalf("call %d: counter = %d, want %d", i, counter, i)
		}
	}

	if _, counter := s.Next(); counter != 0 {
		t.Errorf("257th call counter = %d, want 0", counter)
	}
}

func TestSequencer_CurrentDoesNotAdvance(t *testing.T) {
	s := NewSequencer(1)
	s.Next()
	s.Next()

	_, c1 := s.Current()
	_, c2 := s.Current()
	if c1 != 2 || c2 != 2 {
		t.Errorf("Current() = %d, %d; want 2, 2", c1, c2)
	}
	if _, c := s.Next(); c != 2 {
		t.Errorf("Next() after Current() = %d, want 2", c)
	}
}

func TestSequencer_Reset(t *testing.T) {
	s := NewSequencer(5)
	for i := 0; i < 10; i++ {
		s.Next()
	}

	s.Reset(99)
	team, counter := s.Next()
	if team != 99 || counter != 0 {
		t.Errorf("after Reset(99): Next() = (%d, %d), want (99, 0)", team, counter)
	}
}
