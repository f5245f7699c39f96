package keys

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

func TestID_RoundTrip(t *testing.T) {
	ids := []uuid.UUID{
		uuid.Nil,
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.New(),
	}

	for _, id := range ids {
		got, err := ParseID(ID(id))
		if err != nil {
			t.Fatalf("ParseID(ID(%s)): %v", id, err)
		}
		if got != id {
			t.Errorf("expected %s, got %s", id, got)
		}
	}
}

func TestParseID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		av   types.AttributeValue
	}{
		{"number attribute", &types.AttributeValueMemberN{Value: "1"}},
		{"malformed string", &types.AttributeValueMemberS{Value: "not-a-uuid"}},
		{"nil attribute", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseID(tt.av); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestKeyShapes(t *testing.T) {
	user, folder, item := uuid.New(), uuid.New(), uuid.New()

	skel := Skeleton(user, folder)
	if len(skel) != 2 {
		t.Fatalf("expected 2 key attributes, got %d", len(skel))
	}
	if v := skel[UserID].(*types.AttributeValueMemberS).Value; v != user.String() {
		t.Errorf("expected user_id %s, got %s", user, v)
	}

	ver := Version(user, folder)
	if v := ver[FolderID].(*types.AttributeValueMemberS).Value; v != folder.String() {
		t.Errorf("expected folder_id %s, got %s", folder, v)
	}

	content := Content(folder, item)
	if _, ok := content[UserID]; ok {
		t.Error("content key must not carry user_id")
	}
	if v := content[ItemID].(*types.AttributeValueMemberS).Value; v != item.String() {
		t.Errorf("expected item_id %s, got %s", item, v)
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 25, nil},
		{"under limit", 3, 25, []int{3}},
		{"exact limit", 25, 25, []int{25}},
		{"one over", 26, 25, []int{25, 1}},
		{"several", 60, 25, []int{25, 25, 10}},
		{"zero size", 3, 0, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xs := make([]int, tt.n)
			for i := range xs {
				xs[i] = i
			}

			chunks := Chunk(xs, tt.size)
			if len(chunks) != len(tt.sizes) {
				t.Fatalf("expected %d chunks, got %d", len(tt.sizes), len(chunks))
			}
			next := 0
			for i, c := range chunks {
				if len(c) != tt.sizes[i] {
					t.Errorf("chunk %d: expected %d elements, got %d", i, tt.sizes[i], len(c))
				}
				for _, x := range c {
					if x != next {
						t.Errorf("expected element %d, got %d", next, x)
					}
					next++
				}
			}
		})
	}
}

func TestChunk_DoesNotAlias(t *testing.T) {
	xs := []int{1, 2, 3}
	chunks := Chunk(xs, 2)
	chunks[0] = append(chunks[0], 99)
	if xs[2] != 3 {
		t.Errorf("appending to a chunk overwrote the source: %v", xs)
	}
}

func TestString(t *testing.T) {
	folder, item := uuid.New(), uuid.New()

	a := Content(folder, item)
	b := map[string]types.AttributeValue{
		ItemID:   &types.AttributeValueMemberS{Value: item.String()},
		FolderID: &types.AttributeValueMemberS{Value: folder.String()},
	}
	if String(a) != String(b) {
		t.Errorf("equal keys render differently: %q vs %q", String(a), String(b))
	}
	if String(a) == String(Content(folder, uuid.New())) {
		t.Error("different keys render the same")
	}
	if String(Skeleton(folder, item)) == String(Content(folder, item)) {
		t.Error("keys with different attribute names render the same")
	}
}
