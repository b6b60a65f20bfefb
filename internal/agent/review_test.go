package agent

import "testing"

func TestParseReview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Review
	}{
		{
			name: "well formed",
			raw:  `{"ok": false, "score": 3, "feedback": "palette clashes", "needs_human": true, "reason": "contrast"}`,
			want: Review{OK: false, Score: 3, Feedback: "palette clashes", NeedsHuman: true, Reason: "contrast"},
		},
		{
			name: "fenced response still parses",
			raw:  "```json\n{\"ok\": true, \"score\": 9}\n```",
			want: Review{OK: true, Score: 9},
		},
		{
			name: "partial fields keep neutral defaults",
			raw:  `{"feedback": "tighten the hero copy"}`,
			want: Review{OK: true, Score: 7, Feedback: "tighten the hero copy"},
		},
		{
			name: "garbage degrades to neutral",
			raw:  "I cannot review this right now.",
			want: Review{OK: true, Score: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseReview(tt.raw)
			if *got != tt.want {
				t.Fatalf("ParseReview() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
