package reasoner

import "testing"

func TestAdviceRegex_DetectsCommonPhrasings(t *testing.T) {
	cases := map[string]bool{
		"what should i do about this":    true,
		"can you help me plan my week":   true,
		"today i went for a walk":        false,
		"我今天心情不好，你有什么建议吗": true,
	}
	for text, want := range cases {
		if got := adviceRegex.MatchString(text); got != want {
			t.Errorf("adviceRegex.MatchString(%q) = %v, want %v", text, got, want)
		}
	}
}
