package clip

import (
	"errors"
	"testing"
)

func TestMemoryAcquireIsExclusive(t *testing.T) {
	m := NewMemory()
	if err := m.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := m.Acquire(); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("second Acquire = %v, want ErrAccessDenied", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(); err == nil {
		t.Fatal("Release without Acquire succeeded")
	}
}

func TestMemorySetNotifiesWatch(t *testing.T) {
	m := NewMemory()
	if err := m.Set([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-m.Watch():
	default:
		t.Fatal("Set did not signal Watch")
	}

	got, err := m.Read()
	if err != nil || string(got) != "hi" {
		t.Fatalf("Read() = %q, %v", got, err)
	}
	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Read(); got != nil {
		t.Fatalf("Read() after Clear = %q, want nil", got)
	}
}

func TestMemoryWatchCoalesces(t *testing.T) {
	m := NewMemory()
	for _, s := range []string{"a", "b", "c"} {
		_ = m.Set([]byte(s))
	}
	<-m.Watch()
	select {
	case <-m.Watch():
		t.Fatal("expected bursts to coalesce into one signal")
	default:
	}
}
