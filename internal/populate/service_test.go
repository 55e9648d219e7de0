package populate

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"volunteer-backend/internal/partial"
)

// memModel is an in-memory target store.
type memModel struct {
	pk   string
	rows []map[string]any
	err  error

	mu     sync.Mutex
	calls  int
	gotIDs []any
	gotSel []string
}

func (m *memModel) PrimaryKey() string { return m.pk }

func (m *memModel) FindByIDs(ctx context.Context, ids []any, fields []string) ([]any, error) {
	m.mu.Lock()
	m.calls++
	m.gotIDs = ids
	m.gotSel = fields
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	want := make(map[any]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []any
	for _, row := range m.rows {
		if !want[row[m.pk]] {
			continue
		}
		if len(fields) == 0 {
			out = append(out, copyRow(row))
			continue
		}
		projected := map[string]any{m.pk: row[m.pk]}
		for _, f := range fields {
			if v, ok := row[f]; ok {
				projected[f] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

func (m *memModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// plainRecord exposes its data only through Plain.
type plainRecord struct {
	id   string
	name string
}

func (p plainRecord) Plain() map[string]any {
	return map[string]any{"id": p.id, "name": p.name}
}

type plainModel struct{ records []plainRecord }

func (m *plainModel) FindByIDs(ctx context.Context, ids []any, fields []string) ([]any, error) {
	var out []any
	for _, r := range m.records {
		for _, id := range ids {
			if id == r.id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func expands(t *testing.T, fields string) *partial.Tree {
	t.Helper()
	res, err := partial.ParseFields(fields)
	if err != nil {
		t.Fatalf("parse %q: %v", fields, err)
	}
	return res.Expands
}

func usersModel() *memModel {
	return &memModel{pk: "id", rows: []map[string]any{
		{"id": "U1", "name": "Alice"},
		{"id": "U9", "displayName": "Bob", "email": "b@x.com"},
	}}
}

func skillsModel() *memModel {
	return &memModel{pk: "id", rows: []map[string]any{
		{"id": "S1", "name": "Go"},
		{"id": "S2", "name": "SQL"},
	}}
}

func TestAddPopulate_Validation(t *testing.T) {
	s := New("applications")

	if err := s.AddPopulate("", usersModel()); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if err := s.AddPopulate("user", nil); !errors.Is(err, ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}
	if err := s.AddPopulate("user", usersModel()); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddPopulate("user", usersModel()); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	s.Freeze()
	if err := s.AddPopulate("project", usersModel()); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"user"}) {
		t.Fatalf("unexpected keys %v", got)
	}
}

func TestPopulate_NothingToPopulate(t *testing.T) {
	s := New("applications")
	doc, err := s.PopulateOne(context.Background(), nil, expands(t, "user"))
	if err != nil || doc != nil {
		t.Fatalf("expected nil, nil; got %v, %v", doc, err)
	}
	docs, err := s.PopulateMany(context.Background(), nil, expands(t, "user"))
	if err != nil || docs != nil {
		t.Fatalf("expected nil, nil; got %v, %v", docs, err)
	}
}

func TestPopulate_NoExpandPassthrough(t *testing.T) {
	users := usersModel()
	s := New("applications")
	if err := s.AddPopulate("user", users); err != nil {
		t.Fatal(err)
	}

	doc := Document{"id": "A1", "user": "U1"}
	got, err := s.PopulateOne(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if reflect.ValueOf(got).Pointer() != reflect.ValueOf(doc).Pointer() {
		t.Fatal("expected the same document back")
	}
	if got["user"] != "U1" {
		t.Fatalf("expected untouched user, got %v", got["user"])
	}
	if users.callCount() != 0 {
		t.Fatalf("expected no fetch, got %d", users.callCount())
	}
}

func TestPopulate_EmptyListPassthrough(t *testing.T) {
	users := usersModel()
	s := New("applications")
	if err := s.AddPopulate("user", users); err != nil {
		t.Fatal(err)
	}

	docs := []Document{}
	got, err := s.PopulateMany(context.Background(), docs, expands(t, "user"))
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if users.callCount() != 0 {
		t.Fatalf("expected no fetch, got %d", users.callCount())
	}
}

func TestPopulate_ScalarRelation(t *testing.T) {
	s := New("applications")
	if err := s.AddPopulate("user", usersModel()); err != nil {
		t.Fatal(err)
	}

	doc := Document{"user": "U1"}
	got, err := s.PopulateOne(context.Background(), doc, expands(t, "user"))
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	want := map[string]any{"id": "U1", "name": "Alice"}
	if !reflect.DeepEqual(got["user"], want) {
		t.Fatalf("expected %v, got %v", want, got["user"])
	}
	if !reflect.DeepEqual(doc["user"], want) {
		t.Fatal("expected the input document to be mutated in place")
	}
}

func TestPopulate_ScalarNotFoundIsRemoved(t *testing.T) {
	s := New("applications")
	if err := s.AddPopulate("user", usersModel()); err != nil {
		t.Fatal(err)
	}

	doc := Document{"id": "A1", "user": "U404"}
	if _, err := s.PopulateOne(context.Background(), doc, expands(t, "user")); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if _, ok := doc["user"]; ok {
		t.Fatalf("expected user to be absent, got %v", doc["user"])
	}
}

func TestPopulate_ArrayRelation(t *testing.T) {
	s := New("projects")
	if err := s.AddPopulate("skills", skillsModel()); err != nil {
		t.Fatal(err)
	}

	docs := []Document{
		{"id": "P1", "skills": []any{"S1", "S2"}},
		{"id": "P2", "skills": []string{"S2", "S3"}},
		{"id": "P3", "skills": []any{}},
	}
	got, err := s.PopulateMany(context.Background(), docs, expands(t, "skills"))
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	p1 := got[0]["skills"].([]any)
	if len(p1) != 2 {
		t.Fatalf("expected 2 skills on P1, got %v", p1)
	}
	names := map[any]bool{}
	for _, s := range p1 {
		names[s.(map[string]any)["name"]] = true
	}
	if !names["Go"] || !names["SQL"] {
		t.Fatalf("expected Go and SQL, got %v", p1)
	}

	p2 := got[1]["skills"].([]any)
	if len(p2) != 1 || p2[0].(map[string]any)["id"] != "S2" {
		t.Fatalf("expected only S2 on P2, got %v", p2)
	}

	if p3 := got[2]["skills"].([]any); len(p3) != 0 {
		t.Fatalf("expected empty skills on P3, got %v", p3)
	}
	if got[0]["id"] != "P1" || got[1]["id"] != "P2" || got[2]["id"] != "P3" {
		t.Fatal("expected document order to be preserved")
	}
}

func TestPopulate_DeduplicatesIDs(t *testing.T) {
	users := usersModel()
	s := New("applications")
	if err := s.AddPopulate("user", users); err != nil {
		t.Fatal(err)
	}

	docs := []Document{{"user": "U1"}, {"user": "U1"}, {"user": "U9"}}
	if _, err := s.PopulateMany(context.Background(), docs, expands(t, "user")); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if users.callCount() != 1 {
		t.Fatalf("expected one batch fetch, got %d", users.callCount())
	}
	if !reflect.DeepEqual(users.gotIDs, []any{"U1", "U9"}) {
		t.Fatalf("unexpected ids %v", users.gotIDs)
	}
}

func TestPopulate_DottedPath(t *testing.T) {
	cities := &memModel{pk: "id", rows: []map[string]any{{"id": "C1", "name": "Oslo"}}}
	s := New("organizations")
	if err := s.AddPopulate("location.city", cities); err != nil {
		t.Fatal(err)
	}

	location := map[string]any{"city": "C1", "street": "Main"}
	doc := Document{"location": location}
	if _, err := s.PopulateOne(context.Background(), doc, expands(t, "location.city")); err != nil {
		t.Fatalf("populate: %v", err)
	}

	loc := doc["location"].(map[string]any)
	if !reflect.DeepEqual(loc["city"], map[string]any{"id": "C1", "name": "Oslo"}) {
		t.Fatalf("unexpected city %v", loc["city"])
	}
	if loc["street"] != "Main" {
		t.Fatalf("expected sibling to be untouched, got %v", loc["street"])
	}
	if reflect.ValueOf(loc).Pointer() != reflect.ValueOf(location).Pointer() {
		t.Fatal("expected the parent object to be reused")
	}
}

func TestPopulate_MissingIntermediateIsSkipped(t *testing.T) {
	cities := &memModel{pk: "id", rows: []map[string]any{{"id": "C1"}}}
	s := New("organizations")
	if err := s.AddPopulate("location.city", cities); err != nil {
		t.Fatal(err)
	}

	docs := []Document{
		{"id": "O1"},
		{"id": "O2", "location": false},
		{"id": "O3", "location": map[string]any{"city": "C1"}},
	}
	if _, err := s.PopulateMany(context.Background(), docs, expands(t, "location.city")); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if _, ok := docs[0]["location"]; ok {
		t.Fatal("expected O1 to stay without location")
	}
	if docs[1]["location"] != false {
		t.Fatalf("expected O2 location untouched, got %v", docs[1]["location"])
	}
	city := docs[2]["location"].(map[string]any)["city"]
	if !reflect.DeepEqual(city, map[string]any{"id": "C1"}) {
		t.Fatalf("unexpected city %v", city)
	}
}

func TestPopulate_UnregisteredIsSkipped(t *testing.T) {
	s := New("applications")
	doc := Document{"id": "A1", "project": "P1"}
	got, err := s.PopulateOne(context.Background(), doc, expands(t, "project(name)"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got["project"] != "P1" {
		t.Fatalf("expected project untouched, got %v", got["project"])
	}
}

func TestPopulate_PlainFieldsAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	s := New("applications")
	doc := Document{"id": "A1", "message": "hi", "project": "P1"}
	if _, err := s.PopulateOne(context.Background(), doc, expands(t, "message,project(name)")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	out := buf.String()
	if strings.Contains(out, `"message"`) {
		t.Fatalf("plain field logged: %s", out)
	}
	if !strings.Contains(out, `"project"`) {
		t.Fatalf("expected unregistered expansion to be logged, got %q", out)
	}
}

func TestPopulate_NestedSelectIsForwarded(t *testing.T) {
	users := usersModel()
	s := New("projects")
	if err := s.AddPopulate("owner", users); err != nil {
		t.Fatal(err)
	}

	doc := Document{"id": "P1", "name": "Proj", "owner": "U9"}
	if _, err := s.PopulateOne(context.Background(), doc, expands(t, "name,owner(displayName)")); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if !reflect.DeepEqual(users.gotSel, []string{"displayName"}) {
		t.Fatalf("expected select [displayName], got %v", users.gotSel)
	}
	want := Document{"id": "P1", "name": "Proj", "owner": map[string]any{"id": "U9", "displayName": "Bob"}}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("expected %v, got %v", want, doc)
	}
}

func TestPopulate_UnknownNestedSelectKeepsID(t *testing.T) {
	users := usersModel()
	s := New("projects")
	if err := s.AddPopulate("owner", users); err != nil {
		t.Fatal(err)
	}

	doc := Document{"id": "P1", "owner": "U9"}
	if _, err := s.PopulateOne(context.Background(), doc, expands(t, "owner(nope)")); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if !reflect.DeepEqual(users.gotSel, []string{"nope"}) {
		t.Fatalf("expected select [nope], got %v", users.gotSel)
	}
	want := Document{"id": "P1", "owner": map[string]any{"id": "U9"}}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("expected %v, got %v", want, doc)
	}
}

func TestPopulate_MultipleRelations(t *testing.T) {
	users := usersModel()
	skills := skillsModel()
	s := New("projects")
	if err := s.AddPopulate("owner", users); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPopulate("skills", skills); err != nil {
		t.Fatal(err)
	}

	docs := []Document{
		{"id": "P1", "owner": "U1", "skills": []any{"S1"}},
		{"id": "P2", "owner": "U9", "skills": []any{"S2"}},
	}
	got, err := s.PopulateMany(context.Background(), docs, expands(t, "owner,skills"))
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if &got[0] != &docs[0] {
		t.Fatal("expected the input slice back")
	}
	if got[1]["owner"].(map[string]any)["displayName"] != "Bob" {
		t.Fatalf("unexpected owner %v", got[1]["owner"])
	}
	if got[0]["skills"].([]any)[0].(map[string]any)["name"] != "Go" {
		t.Fatalf("unexpected skills %v", got[0]["skills"])
	}
}

func TestPopulate_FailureLeavesDocumentsUntouched(t *testing.T) {
	boom := errors.New("connection reset")
	s := New("projects")
	if err := s.AddPopulate("owner", usersModel()); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPopulate("skills", &memModel{pk: "id", err: boom}); err != nil {
		t.Fatal(err)
	}

	doc := Document{"id": "P1", "owner": "U1", "skills": []any{"S1"}}
	_, err := s.PopulateOne(context.Background(), doc, expands(t, "owner,skills"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if doc["owner"] != "U1" {
		t.Fatalf("expected owner untouched after failure, got %v", doc["owner"])
	}
}

func TestPopulate_PlainerRecords(t *testing.T) {
	s := New("users")
	if err := s.AddPopulate("tags", &plainModel{records: []plainRecord{{id: "T1", name: "outdoor"}}}); err != nil {
		t.Fatal(err)
	}

	doc := Document{"tags": []any{"T1"}}
	if _, err := s.PopulateOne(context.Background(), doc, expands(t, "tags")); err != nil {
		t.Fatalf("populate: %v", err)
	}
	want := []any{map[string]any{"id": "T1", "name": "outdoor"}}
	if !reflect.DeepEqual(doc["tags"], want) {
		t.Fatalf("expected %v, got %v", want, doc["tags"])
	}
}

func TestPopulate_ConcurrentCallsShareService(t *testing.T) {
	s := New("applications")
	if err := s.AddPopulate("user", usersModel()); err != nil {
		t.Fatal(err)
	}
	s.Freeze()
	tree := expands(t, "user")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := Document{"user": "U1"}
			if _, err := s.PopulateOne(context.Background(), doc, tree); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("populate: %v", err)
	}
}
