package openapi

import (
	"context"
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, path := range []string{
		"/api/v1/collaborators",
		"/api/v1/session",
		"/api/v1/role-records/{identity}",
		"/api/v1/requisitions/mine/{id}",
		"/api/v1/requisitions/{id}/quotations",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("путь %s отсутствует в контракте", path)
		}
	}
	if len(doc.Servers) != 0 {
		t.Error("контракт не должен задавать servers: маршруты сопоставляются по сырому пути")
	}
}
