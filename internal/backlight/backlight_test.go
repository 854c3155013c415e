package backlight

import "testing"

func TestNull_ClampsAndRecords(t *testing.T) {
	n := NewNull()
	if n.Level() != -1 {
		t.Fatalf("Level before write = %d, want -1", n.Level())
	}

	for _, level := range []int{-10, 0, 128, 400} {
		if err := n.SetLevel(level); err != nil {
			t.Fatal(err)
		}
	}

	want := []int{0, 0, 128, 255}
	got := n.Writes()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("writes[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if n.Level() != 255 {
		t.Errorf("Level = %d, want 255", n.Level())
	}
}
