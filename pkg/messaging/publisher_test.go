package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeHeaders(t *testing.T) {
	tests := []struct {
		name    string
		common  map[string]string
		message *Message
		want    map[string]string
	}{
		{
			name:    "empty",
			message: &Message{},
			want:    map[string]string{},
		},
		{
			name:    "common only",
			common:  map[string]string{HeaderContentType: "application/json"},
			message: &Message{},
			want:    map[string]string{HeaderContentType: "application/json"},
		},
		{
			name:   "message headers win",
			common: map[string]string{"source": "api", "action": "a"},
			message: &Message{Headers: []Header{
				{Key: "action", Value: []byte("order.created")},
			}},
			want: map[string]string{"source": "api", "action": "order.created"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeHeaders(tt.common, tt.message))
		})
	}
}
