package cursor

import (
	"math/rand"
	"testing"
	"time"

	"github.com/matheus3301/textsync/internal/bus"
)

func TestMergeMonotonic(t *testing.T) {
	s := NewStore(nil)
	if !s.Merge("t1", 2000, OriginPoll) {
		t.Fatal("first merge should advance")
	}
	if s.Merge("t1", 1000, OriginPush) {
		t.Error("older value should not advance")
	}
	if s.Merge("t1", 2000, OriginPush) {
		t.Error("equal value should be a no-op")
	}
	if got, _ := s.Get("t1"); got != 2000 {
		t.Errorf("Get() = %d, want 2000", got)
	}
}

// Poll reports T1, then a late push event reports T2 < T1.
func TestPollThenOlderPush(t *testing.T) {
	s := NewStore(nil)
	const t1, t2 = int64(1_700_000_005_000), int64(1_700_000_001_000)
	s.Merge("+212600000001_+212661234567", t1, OriginPoll)
	s.Merge("+212600000001_+212661234567", t2, OriginPush)
	if got, _ := s.Get("+212600000001_+212661234567"); got != t1 {
		t.Errorf("cursor = %d, want %d", got, t1)
	}
}

func TestMergeCommutative(t *testing.T) {
	values := []int64{5, 3, 9, 1, 9, 7}
	var want int64
	for _, v := range values {
		want = max(want, v)
	}
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 20; n++ {
		s := NewStore(nil)
		for _, i := range rng.Perm(len(values)) {
			s.Merge("t", values[i], OriginLocal)
		}
		if got, _ := s.Get("t"); got != want {
			t.Fatalf("Get() = %d, want %d", got, want)
		}
	}
}

func TestGetByCanonicalForm(t *testing.T) {
	s := NewStore(nil)
	s.Merge("+212661234567_+212600000001", 5000, OriginPush)

	for _, id := range []string{"600000001_661234567", "0600000001_0661234567"} {
		got, ok := s.Get(id)
		if !ok || got != 5000 {
			t.Errorf("Get(%q) = %d, %v; want 5000", id, got, ok)
		}
	}
	if _, ok := s.Get("600000001_699999999"); ok {
		t.Error("unrelated thread should have no cursor")
	}
}

func TestMergeIgnoresInvalid(t *testing.T) {
	s := NewStore(nil)
	if s.Merge("", 100, OriginLocal) || s.Merge("t", 0, OriginLocal) {
		t.Error("empty thread or zero timestamp should be ignored")
	}
	if len(s.Snapshot()) != 0 {
		t.Error("snapshot should be empty")
	}
}

func TestMergePublishesAdvance(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("cursor.", 10)
	defer unsub()

	s := NewStore(b)
	s.Merge("t", 10, OriginLocal)
	s.Merge("t", 5, OriginPush)

	select {
	case evt := <-ch:
		adv, ok := evt.Payload.(Advanced)
		if !ok || adv.LastReadAt != 10 || adv.Origin != OriginLocal {
			t.Errorf("payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cursor.advanced")
	}
	select {
	case evt := <-ch:
		t.Errorf("no-op merge published %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
