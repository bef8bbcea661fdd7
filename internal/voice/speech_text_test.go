package voice

import "testing"

func TestSpeakableText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "spells npi digits",
			in:   "NPI 1456789123.",
			want: "NPI 1 4 5 6 7 8 9 1 2 3.",
		},
		{
			name: "spells prefixed member id by group",
			in:   "Member BCX-4827163, please.",
			want: "Member B C X, 4 8 2 7 1 6 3, please.",
		},
		{
			name: "spells dated claim number",
			in:   "Claim CLM-20260203-4471 is paid.",
			want: "Claim C L M, 2 0 2 6 0 2 0 3, 4 4 7 1 is paid.",
		},
		{
			name: "keeps dates and currency",
			in:   "DOB 01/14/1986. Copay is $30 or 20%.",
			want: "DOB 01/14/1986. Copay is $30 or 20%.",
		},
		{
			name: "drops markup and links",
			in:   "**Verified** see [portal](https://example.com/a) now",
			want: "Verified see portal now",
		},
		{
			name: "collapses whitespace",
			in:   "  One\n\tmoment   please ",
			want: "One moment please",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := speakableText(tc.in)
			if got != tc.want {
				t.Fatalf("speakableText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
