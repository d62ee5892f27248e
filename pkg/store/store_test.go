package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// Both backends run the same behavioral suite.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(&SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "records.db"),
		WALMode:     true,
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleRecord(id string) *security.Record {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &security.Record{
		ID:             id,
		Title:          "Operation Status",
		Description:    "field reporting",
		Classification: classification.Confidential,
		Cells: []security.Cell{
			{
				ID:             id + "-c1",
				RecordID:       id,
				FieldName:      "title",
				FieldValue:     "Operation Status",
				Classification: classification.Unclassified,
				CreatedAt:      now,
				UpdatedAt:      now,
			},
			{
				ID:             id + "-c2",
				RecordID:       id,
				FieldName:      "asset_status",
				FieldValue:     "ACTIVE",
				Classification: classification.Secret,
				Compartments:   []string{"PROJECT_OMEGA"},
				CreatedAt:      now,
				UpdatedAt:      now,
			},
		},
		CreatedBy: "u-100",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleRecord("r-1")
			want.NTK = &security.NeedToKnowGrant{
				Required: true,
				Users:    []string{"u-200"},
			}

			if err := s.Create(ctx, want); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := s.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != want.Title || got.Classification != want.Classification {
				t.Errorf("record = %+v", got)
			}
			if len(got.Cells) != 2 {
				t.Fatalf("cell count = %d", len(got.Cells))
			}
			if got.Cells[0].FieldName != "title" || got.Cells[1].FieldName != "asset_status" {
				t.Errorf("cell order = %q, %q", got.Cells[0].FieldName, got.Cells[1].FieldName)
			}
			if !reflect.DeepEqual(got.Cells[1].Compartments, []string{"PROJECT_OMEGA"}) {
				t.Errorf("compartments = %v", got.Cells[1].Compartments)
			}
			if got.NTK == nil || !got.NTK.Required || !reflect.DeepEqual(got.NTK.Users, []string{"u-200"}) {
				t.Errorf("ntk grant = %+v", got.NTK)
			}
		})
	}
}

func TestStore_GetUnknownID(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_DuplicateCreate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, sampleRecord("r-1")); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := s.Create(ctx, sampleRecord("r-1")); err == nil {
				t.Error("duplicate create should fail")
			}
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 4; i++ {
				r := sampleRecord(fmt.Sprintf("r-%d", i))
				r.CreatedAt = r.CreatedAt.Add(time.Duration(i) * time.Minute)
				r.UpdatedAt = r.CreatedAt
				if i == 4 {
					r.CreatedBy = "u-999"
				}
				if err := s.Create(ctx, r); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}

			all, err := s.List(ctx, nil)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 4 {
				t.Fatalf("len = %d", len(all))
			}
			if all[0].ID != "r-1" || all[3].ID != "r-4" {
				t.Errorf("order = %s .. %s", all[0].ID, all[3].ID)
			}

			byCreator, err := s.List(ctx, &ListQuery{CreatedBy: "u-999"})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(byCreator) != 1 || byCreator[0].ID != "r-4" {
				t.Errorf("filtered = %+v", byCreator)
			}

			page, err := s.List(ctx, &ListQuery{Limit: 2, Offset: 1})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(page) != 2 || page[0].ID != "r-2" || page[1].ID != "r-3" {
				t.Errorf("page = %+v", page)
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			original := sampleRecord("r-1")
			if err := s.Create(ctx, original); err != nil {
				t.Fatalf("Create: %v", err)
			}

			updated := sampleRecord("r-1")
			updated.Title = "Operation Status (rev 2)"
			updated.UpdatedBy = "u-200"
			updated.Cells = updated.Cells[:1]
			updated.Cells[0].FieldValue = "Operation Status (rev 2)"
			if err := s.Update(ctx, updated); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, err := s.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != "Operation Status (rev 2)" {
				t.Errorf("title = %q", got.Title)
			}
			if len(got.Cells) != 1 || got.Cells[0].FieldValue != "Operation Status (rev 2)" {
				t.Errorf("cells = %+v", got.Cells)
			}
			// Provenance of creation survives the update.
			if got.CreatedBy != "u-100" || !got.CreatedAt.Equal(original.CreatedAt) {
				t.Errorf("creation provenance lost: %s / %v", got.CreatedBy, got.CreatedAt)
			}
		})
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(context.Background(), sampleRecord("ghost"))
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SoftDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, sampleRecord("r-1")); err != nil {
				t.Fatalf("Create: %v", err)
			}

			if err := s.SoftDelete(ctx, "r-1", "u-admin"); err != nil {
				t.Fatalf("SoftDelete: %v", err)
			}
			if _, err := s.Get(ctx, "r-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}

			all, err := s.List(ctx, nil)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 0 {
				t.Errorf("deleted record still listed: %+v", all)
			}

			// A second delete of the same record is a not-found, not a no-op.
			if err := s.SoftDelete(ctx, "r-1", "u-admin"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second delete = %v, want ErrNotFound", err)
			}
		})
	}
}

// TestStore_ReturnsCopies verifies mutating a returned record does not leak
// back into stored state.
func TestStore_ReturnsCopies(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, sampleRecord("r-1")); err != nil {
				t.Fatalf("Create: %v", err)
			}

			first, err := s.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			first.Title = "tampered"
			first.Cells[0].FieldValue = "tampered"

			second, err := s.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if second.Title == "tampered" || second.Cells[0].FieldValue == "tampered" {
				t.Error("stored record mutated through a returned copy")
			}
		})
	}
}
