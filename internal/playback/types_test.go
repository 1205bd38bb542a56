package playback

import "testing"

func TestParseCommandKind(t *testing.T) {
	tests := []struct {
		in      string
		want    CommandKind
		wantErr bool
	}{
		{"play", CommandPlay, false},
		{" PAUSE ", CommandPause, false},
		{"jump", CommandJump, false},
		{"complete", CommandComplete, false},
		{"state", "", true},
		{"rewind", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCommandKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCommandKind(%q) = (%q, %v), want (%q, err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseJumpPolicy(t *testing.T) {
	for in, want := range map[string]JumpPolicy{"": JumpResume, "resume": JumpResume, "Pause": JumpPause} {
		got, err := ParseJumpPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseJumpPolicy(%q) = (%q, %v), want %q", in, got, err, want)
		}
	}
	if _, err := ParseJumpPolicy("stop"); err == nil {
		t.Error("ParseJumpPolicy(stop) error = nil")
	}
}
