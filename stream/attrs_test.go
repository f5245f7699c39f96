package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func TestGetStringAttr(t *testing.T) {
	tests := []struct {
		name  string
		image map[string]events.DynamoDBAttributeValue
		want  string
	}{
		{"existing", map[string]events.DynamoDBAttributeValue{"folder_name": events.NewStringAttribute("Objects")}, "Objects"},
		{"unicode", map[string]events.DynamoDBAttributeValue{"folder_name": events.NewStringAttribute("日本語テスト")}, "日本語テスト"},
		{"missing key", map[string]events.DynamoDBAttributeValue{"other": events.NewStringAttribute("x")}, ""},
		{"number", map[string]events.DynamoDBAttributeValue{"folder_name": events.NewNumberAttribute("7")}, ""},
		{"empty image", map[string]events.DynamoDBAttributeValue{}, ""},
		{"nil image", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getStringAttr(tt.image, "folder_name"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
