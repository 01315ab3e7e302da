package models

import (
	"encoding/json"
	"reflect"
	"testing"

	"gorm.io/datatypes"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"app.js", false},
		{"src/index.js", false},
		{"package.json", false},
		{".env.example", false},
		{"", true},
		{"   ", true},
		{".", true},
		{"/etc/passwd", true},
		{"../secret", true},
		{"..", true},
		{"src/../../x", true},
		{"src//a.js", true},
		{"src/./a.js", true},
		{"src\\a.js", true},
		{"src/", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestFileTree_Validate(t *testing.T) {
	good := FileTree{"app.js": "console.log(1)", "routes/user.js": ""}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := FileTree{"app.js": "", "../escape.js": ""}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for escaping path")
	}

	siblings := FileTree{"src": "", "src-old.js": "", "srcs/a.js": ""}
	if err := siblings.Validate(); err != nil {
		t.Errorf("names sharing a prefix are not nested: %v", err)
	}

	for _, tree := range []FileTree{
		{"src": "x", "src/index.js": "y"},
		{"src": "x", "src-old.js": "", "src/lib/util.js": "y"},
	} {
		if err := tree.Validate(); err == nil {
			t.Errorf("expected file/directory clash for %v", tree.Paths())
		}
	}
}

func TestFileTree_Paths(t *testing.T) {
	tree := FileTree{"b.js": "", "a/z.js": "", "a/b.js": ""}
	want := []string{"a/b.js", "a/z.js", "b.js"}
	if got := tree.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}

func TestFileTree_CloneIsIndependent(t *testing.T) {
	tree := FileTree{"app.js": "v1"}
	clone := tree.Clone()
	clone["app.js"] = "v2"
	if tree["app.js"] != "v1" {
		t.Error("mutating the clone changed the original")
	}
}

func TestProject_JSONShape(t *testing.T) {
	p := Project{
		ID:       "p1",
		Name:     "demo",
		FileTree: datatypes.NewJSONType(FileTree{"app.js": "x"}),
		Members:  []User{{ID: "u1", Email: "a@x.com", Password: "hash"}},
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["_id"] != "p1" {
		t.Errorf("expected _id p1, got %v", out["_id"])
	}
	tree, ok := out["fileTree"].(map[string]interface{})
	if !ok || tree["app.js"] != "x" {
		t.Errorf("unexpected fileTree %v", out["fileTree"])
	}
	users, ok := out["users"].([]interface{})
	if !ok || len(users) != 1 {
		t.Fatalf("unexpected users %v", out["users"])
	}
	if _, leaked := users[0].(map[string]interface{})["password"]; leaked {
		t.Error("password hash must not be serialized")
	}
}

func TestProject_HasMember(t *testing.T) {
	p := Project{Members: []User{{ID: "a"}, {ID: "b"}}}
	if !p.HasMember("a") || p.HasMember("c") {
		t.Error("HasMember returned the wrong answer")
	}
	if got := p.MemberIDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("MemberIDs() = %v", got)
	}
}
