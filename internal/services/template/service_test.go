package template

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeStore struct {
	templates    []*models.Template
	items        map[string][]models.TemplateItem
	exampleMedia map[string][]models.ExampleMedia
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:        make(map[string][]models.TemplateItem),
		exampleMedia: make(map[string][]models.ExampleMedia),
	}
}

func (f *fakeStore) Create(ctx context.Context, template *models.Template) error {
	for _, existing := range f.templates {
		if existing.TenantID == template.TenantID && existing.UnitID == template.UnitID && existing.Version == template.Version {
			return cherrors.NewDuplicateKey("template version %d already exists for unit %s", template.Version, template.UnitID)
		}
	}
	cp := *template
	f.templates = append(f.templates, &cp)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID string, id string) (*models.Template, error) {
	for _, tmpl := range f.templates {
		if tmpl.ID == id && tmpl.TenantID == tenantID {
			cp := *tmpl
			return &cp, nil
		}
	}
	return nil, cherrors.NewNotFound("template %s not found", id)
}

func (f *fakeStore) GetCurrent(ctx context.Context, tenantID string, unitID string) (*models.Template, error) {
	var current *models.Template
	for _, tmpl := range f.templates {
		if tmpl.TenantID != tenantID || tmpl.UnitID != unitID {
			continue
		}
		if current == nil || tmpl.Version > current.Version {
			current = tmpl
		}
	}
	if current == nil {
		return nil, nil
	}
	cp := *current
	return &cp, nil
}

func (f *fakeStore) ListItems(ctx context.Context, templateID string) ([]models.TemplateItem, error) {
	items := append([]models.TemplateItem(nil), f.items[templateID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (f *fakeStore) GetItem(ctx context.Context, templateID string, key string) (*models.TemplateItem, error) {
	for _, item := range f.items[templateID] {
		if item.Key == key {
			cp := item
			return &cp, nil
		}
	}
	return nil, cherrors.NewNotFound("template item %s not found", key)
}

func (f *fakeStore) CreateItem(ctx context.Context, item *models.TemplateItem) error {
	for _, existing := range f.items[item.TemplateID] {
		if existing.Key == item.Key {
			return cherrors.NewDuplicateKey("item key %s already exists on template %s", item.Key, item.TemplateID)
		}
	}
	f.items[item.TemplateID] = append(f.items[item.TemplateID], *item)
	return nil
}

func (f *fakeStore) CreateItems(ctx context.Context, items []models.TemplateItem) error {
	for i := range items {
		if err := f.CreateItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) UpdateItem(ctx context.Context, item *models.TemplateItem) error {
	items := f.items[item.TemplateID]
	for i := range items {
		if items[i].Key == item.Key {
			items[i] = *item
			return nil
		}
	}
	return cherrors.NewNotFound("template item %s not found", item.Key)
}

func (f *fakeStore) DeleteItem(ctx context.Context, templateID string, key string) error {
	items := f.items[templateID]
	for i := range items {
		if items[i].Key == key {
			f.items[templateID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return cherrors.NewNotFound("template item %s not found", key)
}

func (f *fakeStore) UpdateItemOrders(ctx context.Context, templateID string, keys []string) error {
	items := f.items[templateID]
	for idx, key := range keys {
		for i := range items {
			if items[i].Key == key {
				items[i].SortOrder = idx + 1
			}
		}
	}
	return nil
}

func (f *fakeStore) MaxItemOrder(ctx context.Context, templateID string) (int, error) {
	max := 0
	for _, item := range f.items[templateID] {
		if item.SortOrder > max {
			max = item.SortOrder
		}
	}
	return max, nil
}

func (f *fakeStore) ListExampleMedia(ctx context.Context, templateItemID string) ([]models.ExampleMedia, error) {
	return append([]models.ExampleMedia(nil), f.exampleMedia[templateItemID]...), nil
}

func (f *fakeStore) CreateExampleMedia(ctx context.Context, m *models.ExampleMedia) error {
	f.exampleMedia[m.TemplateItemID] = append(f.exampleMedia[m.TemplateItemID], *m)
	return nil
}

func (f *fakeStore) DeleteExampleMedia(ctx context.Context, id string) error {
	for itemID, media := range f.exampleMedia {
		for i := range media {
			if media[i].ID == id {
				f.exampleMedia[itemID] = append(media[:i], media[i+1:]...)
				return nil
			}
		}
	}
	return cherrors.NewNotFound("example media %s not found", id)
}

type fakeObjectStore struct{}

func (f *fakeObjectStore) IssuePutURL(ctx context.Context, objectKey string, mimeType string, expiry time.Duration) (string, error) {
	return "https://storage.test/put/" + objectKey, nil
}

func (f *fakeObjectStore) GetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return "https://storage.test/get/" + objectKey, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func seedTemplate(store *fakeStore, tenantID, unitID string, version int, keys ...string) *models.Template {
	tmpl := &models.Template{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		UnitID:   unitID,
		Version:  version,
	}
	store.templates = append(store.templates, tmpl)
	for i, key := range keys {
		store.items[tmpl.ID] = append(store.items[tmpl.ID], models.TemplateItem{
			ID:         uuid.New().String(),
			TemplateID: tmpl.ID,
			Key:        key,
			Title:      strings.ToUpper(key),
			Type:       models.ItemTypeBool,
			SortOrder:  i + 1,
		})
	}
	return tmpl
}

const tenant = "tenant-1"

func TestCreateVersion_FirstVersionStartsEmpty(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())

	tmpl, err := svc.CreateVersion(context.Background(), tenant, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tmpl.Version)
	assert.Empty(t, tmpl.Items)
}

func TestCreateVersion_ClonesCurrentItems(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	v1 := seedTemplate(store, tenant, "unit-1", 1, "floors", "windows")

	v2, err := svc.CreateVersion(context.Background(), tenant, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	require.Len(t, v2.Items, 2)
	assert.Equal(t, "floors", v2.Items[0].Key)
	assert.NotEqual(t, v1.ID, v2.ID)
	// clones got fresh identity
	assert.NotEqual(t, store.items[v1.ID][0].ID, v2.Items[0].ID)
}

func TestAddItem_DefaultsToEndOfOrder(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors", "windows")

	updated, err := svc.AddItem(context.Background(), tenant, tmpl.ID, models.CreateTemplateItemRequest{
		Key:   "doors",
		Title: "Doors",
		Type:  models.ItemTypeBool,
	})
	require.NoError(t, err)

	doors := updated.ItemByKey("doors")
	require.NotNil(t, doors)
	assert.Equal(t, 3, doors.SortOrder)
}

func TestAddItem_DuplicateKeyFails(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors")

	_, err := svc.AddItem(context.Background(), tenant, tmpl.ID, models.CreateTemplateItemRequest{
		Key:   "floors",
		Title: "Floors again",
		Type:  models.ItemTypeBool,
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindDuplicateKey))
}

func TestUpdateItem_PatchesFields(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors")

	title := "Floors and baseboards"
	required := true
	updated, err := svc.UpdateItem(context.Background(), tenant, tmpl.ID, "floors", models.UpdateTemplateItemRequest{
		Title:    &title,
		Required: &required,
	})
	require.NoError(t, err)

	floors := updated.ItemByKey("floors")
	require.NotNil(t, floors)
	assert.Equal(t, title, floors.Title)
	assert.True(t, floors.Required)
	// untouched fields survive
	assert.Equal(t, models.ItemTypeBool, floors.Type)
}

func TestRemoveItem(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors", "windows")

	updated, err := svc.RemoveItem(context.Background(), tenant, tmpl.ID, "floors")
	require.NoError(t, err)
	assert.Nil(t, updated.ItemByKey("floors"))
	assert.NotNil(t, updated.ItemByKey("windows"))

	_, err = svc.RemoveItem(context.Background(), tenant, tmpl.ID, "floors")
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindNotFound))
}

func TestUpdateItemOrder_AssignsByPosition(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "a", "b", "c")

	updated, err := svc.UpdateItemOrder(context.Background(), tenant, tmpl.ID, []string{"c", "a", "b"})
	require.NoError(t, err)

	require.Len(t, updated.Items, 3)
	assert.Equal(t, "c", updated.Items[0].Key)
	assert.Equal(t, "a", updated.Items[1].Key)
	assert.Equal(t, "b", updated.Items[2].Key)
	assert.Equal(t, 1, updated.Items[0].SortOrder)
}

func TestAddItemExampleMedia(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors")

	updated, err := svc.AddItemExampleMedia(context.Background(), tenant, tmpl.ID, "floors", models.AddExampleMediaRequest{
		ObjectKey: "examples/clean-floor.jpg",
	})
	require.NoError(t, err)

	floors := updated.ItemByKey("floors")
	require.NotNil(t, floors)
	require.Len(t, floors.ExampleMedia, 1)
	assert.Equal(t, "https://storage.test/get/examples/clean-floor.jpg", floors.ExampleMedia[0].URL)
	assert.Equal(t, 1, floors.ExampleMedia[0].SortOrder)
}

func TestAddItemExampleMedia_NoStoreNoURLFails(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors")

	_, err := svc.AddItemExampleMedia(context.Background(), tenant, tmpl.ID, "floors", models.AddExampleMediaRequest{
		ObjectKey: "examples/clean-floor.jpg",
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindMediaUnavailable))
}

func TestGetExampleMediaUploadURLs(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors")

	uploads, err := svc.GetExampleMediaUploadURLs(context.Background(), tenant, tmpl.ID, "floors", 2, nil)
	require.NoError(t, err)
	require.Len(t, uploads, 2)

	prefix := fmt.Sprintf("checklists/templates/%s/items/floors/examples/", tmpl.ID)
	for _, upload := range uploads {
		assert.True(t, strings.HasPrefix(upload.ObjectKey, prefix))
		assert.True(t, strings.HasSuffix(upload.ObjectKey, ".jpg"))
	}
}

func TestGetExampleMediaUploadURLs_UnknownItemFails(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeObjectStore{}, testLogger())
	tmpl := seedTemplate(store, tenant, "unit-1", 1, "floors")

	_, err := svc.GetExampleMediaUploadURLs(context.Background(), tenant, tmpl.ID, "nope", 1, nil)
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindNotFound))
}
