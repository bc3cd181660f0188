package document

import "testing"

func TestChapterWordCount(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"   \n\t ", 0},
		{"one", 1},
		{"one two three", 3},
		{"spread\nacross\nlines\tand tabs", 5},
		{"  leading and trailing  ", 3},
	}
	for _, tc := range cases {
		ch := Chapter{Content: tc.content}
		if got := ch.WordCount(); got != tc.want {
			t.Errorf("WordCount(%q): got %d, want %d", tc.content, got, tc.want)
		}
	}
}
