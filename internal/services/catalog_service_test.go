package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/repositories"
	"github.com/gemvault/api/internal/repositories/memory"
)

var testNow = time.Date(2026, time.April, 2, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type failingPushCategories struct {
	repositories.CategoryRepository
	pushErr error
}

func (f failingPushCategories) PushSubcategory(ctx context.Context, categoryID string, sub domain.Subcategory, updatedAt time.Time) (domain.Category, error) {
	if f.pushErr != nil {
		return domain.Category{}, f.pushErr
	}
	return f.CategoryRepository.PushSubcategory(ctx, categoryID, sub, updatedAt)
}

type loggedEvent struct {
	event  string
	fields map[string]any
}

func newTestCatalogService(t *testing.T, categories repositories.CategoryRepository, types repositories.TypeRepository, logs *[]loggedEvent) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Categories: categories,
		Types:      types,
		Clock:      fixedClock,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			if logs != nil {
				*logs = append(*logs, loggedEvent{event: event, fields: fields})
			}
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestNewCatalogServiceRequiresRepositories(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{}); err == nil {
		t.Fatalf("expected error without category repository")
	}
	reg := memory.NewRegistry()
	if _, err := NewCatalogService(CatalogServiceDeps{Categories: reg.Categories()}); err == nil {
		t.Fatalf("expected error without type repository")
	}
}

func TestCatalogServiceListCategoriesExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	if _, err := svc.ListCategories(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on empty catalog, got %v", err)
	}

	rings, err := svc.AddCategory(ctx, "Rings")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	chains, err := svc.AddCategory(ctx, "  <b>Chains</b> ")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if chains.Name != "Chains" {
		t.Fatalf("expected cleaned name, got %q", chains.Name)
	}
	if len(rings.Subcategories) != 0 || rings.CreatedAt != testNow {
		t.Fatalf("unexpected new category: %+v", rings)
	}
	if err := svc.DeleteCategory(ctx, chains.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}

	list, err := svc.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(list) != 1 || list[0].ID != rings.ID {
		t.Fatalf("expected only active category, got %+v", list)
	}
	for _, c := range list {
		if c.IsDeleted {
			t.Fatalf("deleted category returned: %+v", c)
		}
	}
}

func TestCatalogServiceAddCategoryValidation(t *testing.T) {
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	if _, err := svc.AddCategory(context.Background(), "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCatalogServiceUpdateCategory(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	cat, err := svc.AddCategory(ctx, "Rings")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}

	updated, err := svc.UpdateCategory(ctx, cat.ID, "Bands")
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if updated.Name != "Bands" {
		t.Fatalf("expected renamed category, got %q", updated.Name)
	}

	if _, err := svc.UpdateCategory(ctx, "not-an-id", "Bands"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for malformed id, got %v", err)
	}
	if _, err := svc.UpdateCategory(ctx, cat.ID, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation for blank name, got %v", err)
	}
	if _, err := svc.UpdateCategory(ctx, domain.NewID(), "Bands"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}

	if err := svc.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if _, err := svc.UpdateCategory(ctx, cat.ID, "Again"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for deleted category, got %v", err)
	}
}

func TestCatalogServiceSubcategoryLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	cat, err := svc.AddCategory(ctx, "Rings")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if _, err := svc.ListSubcategories(ctx, cat.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for empty subcategory list, got %v", err)
	}

	updated, err := svc.AddSubcategory(ctx, cat.ID, "Solitaire")
	if err != nil {
		t.Fatalf("AddSubcategory: %v", err)
	}
	if len(updated.Subcategories) != 1 {
		t.Fatalf("expected one subcategory, got %d", len(updated.Subcategories))
	}
	sub := updated.Subcategories[0]
	if sub.CategoryID != cat.ID || sub.Name != "Solitaire" {
		t.Fatalf("unexpected subcategory: %+v", sub)
	}

	renamed, err := svc.UpdateSubcategory(ctx, UpdateSubcategoryCommand{
		SubcategoryID: sub.ID,
		Name:          domain.Some("Halo"),
	})
	if err != nil {
		t.Fatalf("UpdateSubcategory: %v", err)
	}
	if renamed.Name != "Halo" || renamed.CategoryID != cat.ID {
		t.Fatalf("unexpected renamed subcategory: %+v", renamed)
	}

	if _, err := svc.UpdateSubcategory(ctx, UpdateSubcategoryCommand{SubcategoryID: sub.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation when nothing supplied, got %v", err)
	}

	if err := svc.DeleteSubcategory(ctx, sub.ID); err != nil {
		t.Fatalf("DeleteSubcategory: %v", err)
	}
	if _, err := svc.ListSubcategories(ctx, cat.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted subcategory to be hidden, got %v", err)
	}
}

func TestCatalogServiceAddSubcategoryToDeletedCategory(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	cat, err := svc.AddCategory(ctx, "Rings")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if err := svc.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if _, err := svc.AddSubcategory(ctx, cat.ID, "Solitaire"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogServiceReassignSubcategory(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	from, _ := svc.AddCategory(ctx, "Rings")
	to, _ := svc.AddCategory(ctx, "Bands")
	withSub, err := svc.AddSubcategory(ctx, from.ID, "Eternity")
	if err != nil {
		t.Fatalf("AddSubcategory: %v", err)
	}
	subID := withSub.Subcategories[0].ID

	moved, err := svc.UpdateSubcategory(ctx, UpdateSubcategoryCommand{
		SubcategoryID: subID,
		CategoryID:    domain.Some(to.ID),
	})
	if err != nil {
		t.Fatalf("UpdateSubcategory: %v", err)
	}
	if moved.CategoryID != to.ID {
		t.Fatalf("expected category id %s, got %s", to.ID, moved.CategoryID)
	}

	if _, err := svc.ListSubcategories(ctx, from.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected source category to be empty, got %v", err)
	}
	subs, err := svc.ListSubcategories(ctx, to.ID)
	if err != nil {
		t.Fatalf("ListSubcategories: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != subID {
		t.Fatalf("expected subcategory in exactly the target, got %+v", subs)
	}
}

func TestCatalogServiceReassignToMissingCategory(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	from, _ := svc.AddCategory(ctx, "Rings")
	withSub, _ := svc.AddSubcategory(ctx, from.ID, "Eternity")
	subID := withSub.Subcategories[0].ID

	_, err := svc.UpdateSubcategory(ctx, UpdateSubcategoryCommand{
		SubcategoryID: subID,
		CategoryID:    domain.Some(domain.NewID()),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	subs, err := svc.ListSubcategories(ctx, from.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("expected subcategory to stay in place, got %+v (%v)", subs, err)
	}
}

func TestCatalogServiceReassignGapReportsPersistence(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	var logs []loggedEvent

	setup := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)
	from, _ := setup.AddCategory(ctx, "Rings")
	to, _ := setup.AddCategory(ctx, "Bands")
	withSub, _ := setup.AddSubcategory(ctx, from.ID, "Eternity")
	subID := withSub.Subcategories[0].ID

	boom := errors.New("write timeout")
	svc := newTestCatalogService(t, failingPushCategories{CategoryRepository: reg.Categories(), pushErr: boom}, reg.Types(), &logs)

	_, err := svc.UpdateSubcategory(ctx, UpdateSubcategoryCommand{
		SubcategoryID: subID,
		CategoryID:    domain.Some(to.ID),
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error to be wrapped, got %v", err)
	}

	for _, categoryID := range []string{from.ID, to.ID} {
		cat, err := reg.Categories().FindActiveByID(ctx, categoryID)
		if err != nil {
			t.Fatalf("FindActiveByID: %v", err)
		}
		if _, ok := cat.FindSubcategory(subID); ok {
			t.Fatalf("expected subcategory in neither category, found in %s", categoryID)
		}
	}

	if len(logs) != 1 || logs[0].event != "catalog.subcategory.reassign_gap" {
		t.Fatalf("expected gap to be logged, got %+v", logs)
	}
	if logs[0].fields["subcategoryId"] != subID {
		t.Fatalf("expected subcategory id in log fields, got %+v", logs[0].fields)
	}
}

func TestCatalogServiceTypes(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	svc := newTestCatalogService(t, reg.Categories(), reg.Types(), nil)

	if _, err := svc.ListTypes(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on empty types, got %v", err)
	}
	ring, err := svc.AddType(ctx, "Ring")
	if err != nil {
		t.Fatalf("AddType: %v", err)
	}
	necklace, err := svc.AddType(ctx, "Necklace")
	if err != nil {
		t.Fatalf("AddType: %v", err)
	}
	if err := svc.DeleteType(ctx, necklace.ID); err != nil {
		t.Fatalf("DeleteType: %v", err)
	}
	types, err := svc.ListTypes(ctx)
	if err != nil {
		t.Fatalf("ListTypes: %v", err)
	}
	if len(types) != 1 || types[0].ID != ring.ID {
		t.Fatalf("expected only active type, got %+v", types)
	}
	if err := svc.DeleteType(ctx, domain.NewID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown type, got %v", err)
	}
}
