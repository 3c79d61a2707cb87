package comments

import (
	"context"
	"errors"
	"testing"
)

type fakeClient struct {
	list    []Comment
	created []string
	edited  map[int64]string
	err     error
}

func (f *fakeClient) ListComments(context.Context, int) ([]Comment, error) {
	return f.list, f.err
}

func (f *fakeClient) CreateComment(_ context.Context, _ int, body string) error {
	f.created = append(f.created, body)
	return nil
}

func (f *fakeClient) EditComment(_ context.Context, id int64, body string) error {
	if f.edited == nil {
		f.edited = map[int64]string{}
	}
	f.edited[id] = body
	return nil
}

const quiet = "all good"

func TestUpsert(t *testing.T) {
	tests := []struct {
		name    string
		list    []Comment
		body    string
		want    Action
		created int
		editID  int64
	}{
		{"first report creates", nil, "errors", Created, 1, 0},
		{"own comment is edited", []Comment{{ID: 1, Login: "someone"}, {ID: 2, Login: "bot", Body: "old"}}, "errors", Updated, 0, 2},
		{"pass text without history is skipped", nil, quiet, Skipped, 0, 0},
		{"pass text already posted is skipped", []Comment{{ID: 3, Login: "bot", Body: quiet}}, quiet, Skipped, 0, 0},
		{"pass text replaces an old report", []Comment{{ID: 4, Login: "bot", Body: "errors"}}, quiet, Updated, 0, 4},
		{"other authors are ignored", []Comment{{ID: 5, Login: "human", Body: quiet}}, "errors", Created, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeClient{list: tt.list}
			got, err := Upsert(context.Background(), c, 7, "bot", tt.body, quiet)
			if err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			if got != tt.want {
				t.Errorf("action = %v, want %v", got, tt.want)
			}
			if len(c.created) != tt.created {
				t.Errorf("created %d comments, want %d", len(c.created), tt.created)
			}
			if tt.editID != 0 && c.edited[tt.editID] != tt.body {
				t.Errorf("comment %d not edited: %v", tt.editID, c.edited)
			}
		})
	}
}

func TestUpsertListError(t *testing.T) {
	c := &fakeClient{err: errors.New("rate limited")}
	if _, err := Upsert(context.Background(), c, 7, "bot", "x", quiet); err == nil {
		t.Fatal("expected an error")
	}
}
