package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"testing"

	"github.com/gofiber/fiber/v2"

	"volunteer-backend/internal/engine"
	"volunteer-backend/internal/metadata"
)

type nopRepo struct {
	engine.Repository
}

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	reg := metadata.NewRegistry()
	reg.Load(metadata.Catalog())
	resources, err := engine.BuildResources(reg, func(*metadata.Entity) engine.Repository { return nopRepo{} })
	if err != nil {
		t.Fatalf("build resources: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAdminRoutes(app, NewHandler(nil, reg, resources))
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return resp.StatusCode, out
}

func TestListEntities(t *testing.T) {
	status, body := get(t, testApp(t), "/api/_admin/entities")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	entities := body["data"].([]any)
	if len(entities) != len(metadata.Catalog()) {
		t.Fatalf("expected every catalog entity, got %d", len(entities))
	}
	first := entities[0].(map[string]any)
	if first["name"] != "users" {
		t.Fatalf("expected load order, got %v first", first["name"])
	}
}

func TestGetEntity_Populates(t *testing.T) {
	status, body := get(t, testApp(t), "/api/_admin/entities/needs")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	data := body["data"].(map[string]any)
	want := []any{"project", "requirements.skill"}
	if !reflect.DeepEqual(data["populates"], want) {
		t.Fatalf("got populates %v, want %v", data["populates"], want)
	}

	status, _ = get(t, testApp(t), "/api/_admin/entities/nope")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}
