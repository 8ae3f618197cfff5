package ids

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	id := New("msg")
	if !strings.HasPrefix(id, "msg_") {
		t.Fatalf("id = %q, want msg_ prefix", id)
	}
	if len(id) != len("msg_")+16 {
		t.Errorf("len(id) = %d, want %d", len(id), len("msg_")+16)
	}
	if New("msg") == id {
		t.Error("consecutive ids should differ")
	}
}
