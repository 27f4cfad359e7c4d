package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "hello world", nil},
		{"single", "hey @alice look at this", []string{"alice"}},
		{"multiple", "@alice and @bob should see this", []string{"alice", "bob"}},
		{"duplicates collapsed", "@alice @bob @alice", []string{"alice", "bob"}},
		{"punctuation terminated", "thanks @alice!", []string{"alice"}},
		{"underscore and digits", "cc @user_42", []string{"user_42"}},
		{"cjk handle", "你好 @小明 再见", []string{"小明"}},
		{"bare at sign", "price @ 10", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMentions(tt.text))
		})
	}
}
