package group

import "testing"

func TestSeenSetFirstSightingTrueRepeatFalse(t *testing.T) {
	s := NewSeenSet()
	frame := []byte("announce frame bytes")

	if !s.Add(frame) {
		t.Fatal("first sighting of a frame must report true")
	}
	if s.Add(frame) {
		t.Fatal("repeat of an already-seen frame must report false")
	}
}

func TestSeenSetDistinguishesDifferentFrames(t *testing.T) {
	s := NewSeenSet()
	if !s.Add([]byte("frame a")) {
		t.Fatal("first sighting of frame a must report true")
	}
	if !s.Add([]byte("frame b")) {
		t.Fatal("first sighting of frame b must report true")
	}
}
