package phone

import "testing"

func containsAll(t *testing.T, got []string, want ...string) {
	t.Helper()
	set := make(map[string]bool, len(got))
	for _, v := range got {
		set[v] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("Variants() missing %q, got %v", w, got)
		}
	}
}

func TestVariants_UKShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "national 0-prefixed",
			in:   "07738585850",
			want: []string{"07738585850", "+447738585850", "447738585850", "7738585850"},
		},
		{
			name: "international with plus",
			in:   "+447738585850",
			want: []string{"+447738585850", "447738585850", "07738585850", "7738585850"},
		},
		{
			name: "international without plus",
			in:   "447738585850",
			want: []string{"447738585850", "+447738585850", "07738585850"},
		},
		{
			name: "bare ten digits",
			in:   "7738585850",
			want: []string{"7738585850", "+447738585850", "447738585850", "07738585850"},
		},
		{
			name: "formatted input",
			in:   "+44 7738 585 850",
			want: []string{"+44 7738 585 850", "+447738585850", "07738585850"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			containsAll(t, Variants(tt.in), tt.want...)
		})
	}
}

func TestVariants_AlwaysIncludesRaw(t *testing.T) {
	for _, in := range []string{"", "anonymous", "client:agent-9", "12345"} {
		got := Variants(in)
		if len(got) == 0 || got[0] != in {
			t.Errorf("Variants(%q) = %v, want raw input first", in, got)
		}
	}
}

func TestVariants_Dedup(t *testing.T) {
	got := Variants("07738585850")
	seen := map[string]int{}
	for _, v := range got {
		seen[v]++
		if seen[v] > 1 {
			t.Errorf("Variants() returned duplicate %q", v)
		}
	}
}

func TestIsClientIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"client:agent-42", true},
		{"Client:desk-1", true},
		{"+447738585850", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsClientIdentifier(tt.in); got != tt.want {
			t.Errorf("IsClientIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMask(t *testing.T) {
	got := Mask("+447738585850")
	if got == "+447738585850" {
		t.Error("Mask() did not mask the number")
	}
	if len(got) == 0 || got[len(got)-4:] != "5850" {
		t.Errorf("Mask() = %q, want last four digits preserved", got)
	}
}
