package partial

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// shape flattens a tree into comparable strings: "path exclude select".
func shape(n *Node, prefix string, out *[]string) {
	for _, c := range n.Nodes {
		path := prefix + c.MemberName
		line := path
		if c.Exclude {
			line += " -"
		}
		if c.Select != "" {
			line += " [" + c.Select + "]"
		}
		*out = append(*out, line)
		shape(c, path+"/", out)
	}
}

func treeShape(t *Tree) []string {
	var out []string
	shape(t.Root, "", &out)
	return out
}

func TestParse_StructureIsStable(t *testing.T) {
	params := map[string]string{"fields": "a,b(c,d)"}

	first, err := Parse(params)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	second, err := Parse(params)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if first.Expands == second.Expands {
		t.Fatal("expected two distinct trees")
	}
	if !reflect.DeepEqual(treeShape(first.Expands), treeShape(second.Expands)) {
		t.Fatalf("trees differ:\n%v\n%v", treeShape(first.Expands), treeShape(second.Expands))
	}

	want := []string{"a", "b [c,d]", "b/c", "b/d"}
	if got := treeShape(first.Expands); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParse_ExclusionIsStripped(t *testing.T) {
	res, err := Parse(map[string]string{"fields": "-secret"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Expands.Len() != 1 {
		t.Fatalf("expected 1 node, got %d", res.Expands.Len())
	}
	node := res.Expands.Nodes()[0]
	if node.MemberName != "secret" {
		t.Fatalf("expected member name secret, got %q", node.MemberName)
	}
	if !node.Exclude {
		t.Fatal("expected exclude=true")
	}
	if !reflect.DeepEqual(res.Fields, []string{"-secret"}) {
		t.Fatalf("expected base projection [-secret], got %v", res.Fields)
	}
}

func TestParse_FullExample(t *testing.T) {
	res, err := Parse(map[string]string{"fields": "name, -internalNotes, user(firstName,lastName), skills(name)"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	wantFields := []string{"name", "-internalNotes", "user", "skills"}
	if !reflect.DeepEqual(res.Fields, wantFields) {
		t.Fatalf("expected fields %v, got %v", wantFields, res.Fields)
	}

	user := res.Expands.Find("user")
	if user == nil {
		t.Fatal("expected user node")
	}
	if user.Select != "firstName,lastName" {
		t.Fatalf("expected user select firstName,lastName, got %q", user.Select)
	}
	if got := user.SelectFields(); !reflect.DeepEqual(got, []string{"firstName", "lastName"}) {
		t.Fatalf("unexpected select fields %v", got)
	}
	if skills := res.Expands.Find("skills"); skills == nil || skills.Select != "name" {
		t.Fatalf("expected skills(name), got %+v", skills)
	}
	if name := res.Expands.Find("name"); name == nil || name.Select != "" {
		t.Fatalf("expected plain name node, got %+v", name)
	}
}

func TestParse_DottedAndNested(t *testing.T) {
	res, err := Parse(map[string]string{"fields": "requirements.skill(name,-category),project(owner(email))"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{
		"requirements.skill [name,-category]",
		"requirements.skill/name",
		"requirements.skill/category -",
		"project [owner]",
		"project/owner [email]",
		"project/owner/email",
	}
	if got := treeShape(res.Expands); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParse_RepeatedTokensMerge(t *testing.T) {
	res, err := Parse(map[string]string{"fields": "user(email),name,user(displayName),,"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(res.Fields, []string{"user", "name"}) {
		t.Fatalf("unexpected fields %v", res.Fields)
	}
	if user := res.Expands.Find("user"); user.Select != "email,displayName" {
		t.Fatalf("expected merged select, got %q", user.Select)
	}
}

func TestParse_EmptyExpression(t *testing.T) {
	res, err := Parse(map[string]string{"fields": ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Expands.Len() != 0 || len(res.Fields) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		wantMsg string
	}{
		{name: "nil params", params: nil, wantMsg: "no query parameters"},
		{name: "missing fields", params: map[string]string{"sort": "name"}, wantMsg: "missing"},
		{name: "unclosed paren", params: map[string]string{"fields": "user(name"}, wantMsg: "unclosed"},
		{name: "stray close", params: map[string]string{"fields": "user)"}, wantMsg: "unbalanced"},
		{name: "paren without name", params: map[string]string{"fields": "(name)"}, wantMsg: "must follow"},
		{name: "junk after group", params: map[string]string{"fields": "user(name)email"}, wantMsg: "expected ','"},
		{name: "bad character", params: map[string]string{"fields": "na*me"}, wantMsg: "unexpected character"},
		{name: "lonely minus", params: map[string]string{"fields": "a,-"}, wantMsg: "'-' must prefix"},
		{name: "too deep", params: map[string]string{"fields": strings.Repeat("a(", 17) + strings.Repeat(")", 17)}, wantMsg: "nested too deeply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.params)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected %q in %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestParseError_Offset(t *testing.T) {
	_, err := ParseFields("name,user)")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Offset != 9 {
		t.Fatalf("expected offset 9, got %d", pe.Offset)
	}
}
