package checklist

import (
	"context"
	"encoding/json"
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

type fakeTemplateStore struct {
	templates []*models.Template
	items     map[string][]models.TemplateItem
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{items: make(map[string][]models.TemplateItem)}
}

func (f *fakeTemplateStore) GetCurrent(ctx context.Context, tenantID string, unitID string) (*models.Template, error) {
	var current *models.Template
	for _, tmpl := range f.templates {
		if tmpl.TenantID != tenantID || tmpl.UnitID != unitID {
			continue
		}
		if current == nil || tmpl.Version > current.Version {
			current = tmpl
		}
	}
	return current, nil
}

func (f *fakeTemplateStore) ListItems(ctx context.Context, templateID string) ([]models.TemplateItem, error) {
	items := append([]models.TemplateItem(nil), f.items[templateID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (f *fakeTemplateStore) addTemplate(tenantID, unitID string, version int, items ...models.TemplateItem) *models.Template {
	tmpl := &models.Template{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		UnitID:   unitID,
		Version:  version,
	}
	f.templates = append(f.templates, tmpl)
	for i := range items {
		items[i].ID = uuid.New().String()
		items[i].TemplateID = tmpl.ID
		if items[i].SortOrder == 0 {
			items[i].SortOrder = i + 1
		}
	}
	f.items[tmpl.ID] = items
	return tmpl
}

type fakeInstanceStore struct {
	instances   map[string]*models.Instance
	items       map[string][]models.InstanceItem
	answers     map[string][]models.Answer
	attachments map[string][]models.Attachment
}

func newFakeInstanceStore() *fakeInstanceStore {
	return &fakeInstanceStore{
		instances:   make(map[string]*models.Instance),
		items:       make(map[string][]models.InstanceItem),
		answers:     make(map[string][]models.Answer),
		attachments: make(map[string][]models.Attachment),
	}
}

func (f *fakeInstanceStore) Create(ctx context.Context, instance *models.Instance) error {
	cp := *instance
	f.instances[instance.ID] = &cp
	return nil
}

func (f *fakeInstanceStore) Get(ctx context.Context, tenantID string, id string) (*models.Instance, error) {
	instance, ok := f.instances[id]
	if !ok || instance.TenantID != tenantID {
		return nil, nil
	}
	cp := *instance
	return &cp, nil
}

func (f *fakeInstanceStore) findLatest(match func(*models.Instance) bool) *models.Instance {
	var found *models.Instance
	for _, instance := range f.instances {
		if !match(instance) {
			continue
		}
		if found == nil || instance.CreatedAt.After(found.CreatedAt) {
			found = instance
		}
	}
	if found == nil {
		return nil
	}
	cp := *found
	return &cp
}

func (f *fakeInstanceStore) FindByUnitAndStage(ctx context.Context, tenantID string, unitID string, stage models.Stage) (*models.Instance, error) {
	return f.findLatest(func(i *models.Instance) bool {
		return i.TenantID == tenantID && i.UnitID == unitID && i.Stage == stage
	}), nil
}

func (f *fakeInstanceStore) FindByCleaningAndStage(ctx context.Context, tenantID string, cleaningID string, stage models.Stage) (*models.Instance, error) {
	return f.findLatest(func(i *models.Instance) bool {
		return i.TenantID == tenantID && i.CleaningID != nil && *i.CleaningID == cleaningID && i.Stage == stage
	}), nil
}

func (f *fakeInstanceStore) FindByRepairAndStage(ctx context.Context, tenantID string, repairID string, stage models.Stage) (*models.Instance, error) {
	return f.findLatest(func(i *models.Instance) bool {
		return i.TenantID == tenantID && i.RepairID != nil && *i.RepairID == repairID && i.Stage == stage
	}), nil
}

func (f *fakeInstanceStore) UpdateStatus(ctx context.Context, tenantID string, id string, status models.InstanceStatus) error {
	instance, ok := f.instances[id]
	if !ok || instance.TenantID != tenantID {
		return cherrors.NewNotFound("checklist instance %s not found", id)
	}
	instance.Status = status
	return nil
}

func (f *fakeInstanceStore) ListItems(ctx context.Context, instanceID string) ([]models.InstanceItem, error) {
	items := append([]models.InstanceItem(nil), f.items[instanceID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
	return items, nil
}

func (f *fakeInstanceStore) CreateItem(ctx context.Context, item *models.InstanceItem) error {
	for _, existing := range f.items[item.InstanceID] {
		if existing.Key == item.Key {
			return cherrors.NewDuplicateKey("item key %s already exists on instance %s", item.Key, item.InstanceID)
		}
	}
	f.items[item.InstanceID] = append(f.items[item.InstanceID], *item)
	return nil
}

func (f *fakeInstanceStore) CreateItems(ctx context.Context, items []models.InstanceItem) error {
	for i := range items {
		if err := f.CreateItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeInstanceStore) UpdateItem(ctx context.Context, item *models.InstanceItem) error {
	items := f.items[item.InstanceID]
	for i := range items {
		if items[i].Key == item.Key {
			items[i] = *item
			return nil
		}
	}
	return cherrors.NewNotFound("instance item %s not found", item.Key)
}

func (f *fakeInstanceStore) DeleteItem(ctx context.Context, instanceID string, key string) error {
	items := f.items[instanceID]
	for i := range items {
		if items[i].Key == key {
			f.items[instanceID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return cherrors.NewNotFound("instance item %s not found", key)
}

func (f *fakeInstanceStore) ListAnswers(ctx context.Context, instanceID string) ([]models.Answer, error) {
	return append([]models.Answer(nil), f.answers[instanceID]...), nil
}

func (f *fakeInstanceStore) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	answers := f.answers[answer.InstanceID]
	for i := range answers {
		if answers[i].ItemKey == answer.ItemKey {
			answers[i].Value = answer.Value
			answers[i].Note = answer.Note
			answers[i].UpdatedAt = answer.UpdatedAt
			return nil
		}
	}
	f.answers[answer.InstanceID] = append(answers, *answer)
	return nil
}

func (f *fakeInstanceStore) ListAttachments(ctx context.Context, instanceID string) ([]models.Attachment, error) {
	return append([]models.Attachment(nil), f.attachments[instanceID]...), nil
}

func (f *fakeInstanceStore) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	f.attachments[attachment.InstanceID] = append(f.attachments[attachment.InstanceID], *attachment)
	return nil
}

func (f *fakeInstanceStore) DeleteAttachment(ctx context.Context, id string) (bool, error) {
	for instanceID, attachments := range f.attachments {
		for i := range attachments {
			if attachments[i].ID == id {
				f.attachments[instanceID] = append(attachments[:i], attachments[i+1:]...)
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeObjectStore struct {
	putCalls []string
	getCalls []string
}

func (f *fakeObjectStore) IssuePutURL(ctx context.Context, objectKey string, mimeType string, expiry time.Duration) (string, error) {
	f.putCalls = append(f.putCalls, objectKey)
	return "https://storage.test/put/" + objectKey, nil
}

func (f *fakeObjectStore) GetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	f.getCalls = append(f.getCalls, objectKey)
	return "https://storage.test/get/" + objectKey, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fixture struct {
	service   *Service
	templates *fakeTemplateStore
	instances *fakeInstanceStore
	media     *fakeObjectStore
}

func newFixture() *fixture {
	templates := newFakeTemplateStore()
	instances := newFakeInstanceStore()
	objectStore := &fakeObjectStore{}
	return &fixture{
		service:   NewService(templates, instances, objectStore, nil, testLogger()),
		templates: templates,
		instances: instances,
		media:     objectStore,
	}
}

func newFixtureWithoutMedia() *fixture {
	templates := newFakeTemplateStore()
	instances := newFakeInstanceStore()
	return &fixture{
		service:   NewService(templates, instances, nil, nil, testLogger()),
		templates: templates,
		instances: instances,
	}
}

func itemKeys(items []models.InstanceItem) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}

const tenant = "tenant-1"

func TestCreateInstance_NoTemplateFails(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})

	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindMissingTemplate))
}

func TestCreateInstance_ClonesTemplateItems(t *testing.T) {
	f := newFixture()
	tmpl := f.templates.addTemplate(tenant, "unit-1", 3,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool, Required: true},
		models.TemplateItem{Key: "windows", Title: "Windows", Type: models.ItemTypeText},
	)

	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})

	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusDraft, instance.Status)
	require.NotNil(t, instance.TemplateID)
	assert.Equal(t, tmpl.ID, *instance.TemplateID)
	require.NotNil(t, instance.TemplateVersion)
	assert.Equal(t, 3, *instance.TemplateVersion)
	assert.Equal(t, []string{"floors", "windows"}, itemKeys(instance.Items))

	// cloned items carry fresh identity but identical metadata
	floors := instance.ItemByKey("floors")
	require.NotNil(t, floors)
	assert.NotEmpty(t, floors.ID)
	assert.True(t, floors.Required)
}

func TestCreateInstance_AdHocRepairStartsEmpty(t *testing.T) {
	f := newFixture()
	repairID := "repair-1"

	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:   "unit-1",
		Stage:    models.StageRepairInspection,
		RepairID: &repairID,
	})

	require.NoError(t, err)
	assert.Empty(t, instance.Items)
	assert.Nil(t, instance.TemplateID)
}

func TestCreateInstance_PlannedInspectionRequiresTemplate(t *testing.T) {
	f := newFixture()
	repairID := "repair-1"

	_, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:              "unit-1",
		Stage:               models.StageRepairInspection,
		RepairID:            &repairID,
		IsPlannedInspection: true,
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindMissingTemplate))

	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "leak", Title: "Leak check", Type: models.ItemTypeBool},
	)

	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:              "unit-1",
		Stage:               models.StageRepairInspection,
		RepairID:            &repairID,
		IsPlannedInspection: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"leak"}, itemKeys(instance.Items))
	assert.NotNil(t, instance.TemplateID)
}

func TestCreateInstance_CleaningInheritsPreCleaningItems(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	cleaningID := "cleaning-1"

	pre, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:     "unit-1",
		Stage:      models.StagePreCleaning,
		CleaningID: &cleaningID,
	})
	require.NoError(t, err)

	// cleaner adds a custom item during intake
	_, err = f.service.AddItem(context.Background(), tenant, pre.ID, models.AddItemRequest{
		Key:   "extra-key",
		Title: "Broken lamp",
		Type:  models.ItemTypePhotoOnly,
	})
	require.NoError(t, err)

	cleaning, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:     "unit-1",
		Stage:      models.StageCleaning,
		CleaningID: &cleaningID,
	})
	require.NoError(t, err)

	assert.Contains(t, itemKeys(cleaning.Items), "extra-key")
	assert.Contains(t, itemKeys(cleaning.Items), "floors")
	// sibling was the source, not the template
	assert.Nil(t, cleaning.TemplateID)
}

func TestSync_AppendsNewTemplateItemsOnly(t *testing.T) {
	f := newFixture()
	tmpl := f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool, Required: true},
	)

	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)
	require.Len(t, instance.Items, 1)

	// manager adds a template item after the instance exists
	f.templates.items[tmpl.ID] = append(f.templates.items[tmpl.ID], models.TemplateItem{
		ID:         uuid.New().String(),
		TemplateID: tmpl.ID,
		Key:        "smoke-detector",
		Title:      "Smoke detector",
		Type:       models.ItemTypeBool,
		Required:   true,
		SortOrder:  2,
	})

	synced, err := f.service.GetInstance(context.Background(), tenant, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"floors", "smoke-detector"}, itemKeys(synced.Items))

	// pre-existing item untouched
	floors := synced.ItemByKey("floors")
	require.NotNil(t, floors)
	assert.Equal(t, "Floors", floors.Title)
	assert.True(t, floors.Required)

	// idempotent on repeat
	again, err := f.service.GetInstance(context.Background(), tenant, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, itemKeys(synced.Items), itemKeys(again.Items))
}

func TestSync_SkipsSubmittedInstances(t *testing.T) {
	f := newFixture()
	tmpl := f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)

	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)

	f.templates.items[tmpl.ID] = append(f.templates.items[tmpl.ID], models.TemplateItem{
		ID:         uuid.New().String(),
		TemplateID: tmpl.ID,
		Key:        "late-addition",
		Title:      "Late addition",
		Type:       models.ItemTypeBool,
		SortOrder:  2,
	})

	frozen, err := f.service.GetInstance(context.Background(), tenant, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"floors"}, itemKeys(frozen.Items))
}

func TestSync_CleaningPullsSiblingAdditions(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	cleaningID := "cleaning-1"

	pre, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:     "unit-1",
		Stage:      models.StagePreCleaning,
		CleaningID: &cleaningID,
	})
	require.NoError(t, err)

	cleaning, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:     "unit-1",
		Stage:      models.StageCleaning,
		CleaningID: &cleaningID,
	})
	require.NoError(t, err)

	// item added to the intake checklist after the cleaning checklist exists
	_, err = f.service.AddItem(context.Background(), tenant, pre.ID, models.AddItemRequest{
		Key:   "stain",
		Title: "Carpet stain",
		Type:  models.ItemTypePhotoOnly,
	})
	require.NoError(t, err)

	synced, err := f.service.GetInstance(context.Background(), tenant, cleaning.ID)
	require.NoError(t, err)
	assert.Contains(t, itemKeys(synced.Items), "stain")
}

func TestAnswer_UpsertOverwrites(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "floors", models.AnswerRequest{
		Value: json.RawMessage(`true`),
	})
	require.NoError(t, err)

	updated, err := f.service.Answer(context.Background(), tenant, instance.ID, "floors", models.AnswerRequest{
		Value: json.RawMessage(`false`),
	})
	require.NoError(t, err)

	require.Len(t, updated.Answers, 1)
	assert.JSONEq(t, `false`, string(updated.Answers[0].Value))
}

func TestAnswer_UnknownItemFails(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "nope", models.AnswerRequest{
		Value: json.RawMessage(`true`),
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindNotFound))
}

func TestAnswer_PhotoOnlyRejectsValues(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "damage", Title: "Damage photos", Type: models.ItemTypePhotoOnly},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "damage", models.AnswerRequest{
		Value: json.RawMessage(`"scratched"`),
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindInvalidValue))

	// a bare note is still allowed
	note := "two photos attached"
	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "damage", models.AnswerRequest{Note: &note})
	assert.NoError(t, err)
}

func TestAnswer_RejectedAfterSubmit(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "floors", models.AnswerRequest{
		Value: json.RawMessage(`true`),
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))
}

func TestGetAttachmentUploadURLs(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "damage", Title: "Damage photos", Type: models.ItemTypePhotoOnly},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	uploads, err := f.service.GetAttachmentUploadURLs(context.Background(), tenant, instance.ID, "damage", 2, []string{"image/png"})
	require.NoError(t, err)
	require.Len(t, uploads, 2)

	prefix := fmt.Sprintf("checklists/instances/%s/items/damage/", instance.ID)
	assert.True(t, strings.HasPrefix(uploads[0].ObjectKey, prefix))
	assert.True(t, strings.HasSuffix(uploads[0].ObjectKey, ".png"))
	// unspecified slots default to jpeg
	assert.True(t, strings.HasSuffix(uploads[1].ObjectKey, ".jpg"))
	assert.Equal(t, 3600, uploads[0].ExpiresIn)
}

func TestGetAttachmentUploadURLs_MediaUnavailable(t *testing.T) {
	f := newFixtureWithoutMedia()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "damage", Title: "Damage photos", Type: models.ItemTypePhotoOnly},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.GetAttachmentUploadURLs(context.Background(), tenant, instance.ID, "damage", 1, nil)
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindMediaUnavailable))
}

func TestAttach_ResolvesURLThroughStore(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "damage", Title: "Damage photos", Type: models.ItemTypePhotoOnly},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	updated, err := f.service.Attach(context.Background(), tenant, instance.ID, "damage", models.AttachRequest{
		ObjectKey: "some/object.jpg",
	})
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 1)
	assert.Equal(t, "https://storage.test/get/some/object.jpg", updated.Attachments[0].URL)
}

func TestAttach_SuppliedURLWinsWithoutStore(t *testing.T) {
	f := newFixtureWithoutMedia()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "damage", Title: "Damage photos", Type: models.ItemTypePhotoOnly},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	url := "https://cdn.example.com/object.jpg"
	updated, err := f.service.Attach(context.Background(), tenant, instance.ID, "damage", models.AttachRequest{
		ObjectKey: "some/object.jpg",
		URL:       &url,
	})
	require.NoError(t, err)
	assert.Equal(t, url, updated.Attachments[0].URL)

	// without a URL the path needs the store
	_, err = f.service.Attach(context.Background(), tenant, instance.ID, "damage", models.AttachRequest{
		ObjectKey: "other/object.jpg",
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindMediaUnavailable))
}

func TestRemoveAttachment(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "damage", Title: "Damage photos", Type: models.ItemTypePhotoOnly},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	updated, err := f.service.Attach(context.Background(), tenant, instance.ID, "damage", models.AttachRequest{
		ObjectKey: "some/object.jpg",
	})
	require.NoError(t, err)

	deleted, err := f.service.RemoveAttachment(context.Background(), updated.Attachments[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = f.service.RemoveAttachment(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSubmit_PhotoMinValidation(t *testing.T) {
	f := newFixture()
	two := 2
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floor photos", Type: models.ItemTypePhotoOnly, Required: true, RequiresPhoto: true, PhotoMin: &two},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Attach(context.Background(), tenant, instance.ID, "floors", models.AttachRequest{ObjectKey: "a.jpg"})
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.Error(t, err)
	var ce *cherrors.ChecklistError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cherrors.KindValidationFailed, ce.Kind)
	assert.Equal(t, []string{"Floor photos"}, ce.MissingItems)

	_, err = f.service.Attach(context.Background(), tenant, instance.ID, "floors", models.AttachRequest{ObjectKey: "b.jpg"})
	require.NoError(t, err)

	submitted, err := f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusSubmitted, submitted.Status)
}

func TestSubmit_RequiredAnswerValidation(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool, Required: true},
		models.TemplateItem{Key: "windows", Title: "Windows", Type: models.ItemTypeText, Required: true},
		models.TemplateItem{Key: "optional", Title: "Optional", Type: models.ItemTypeText},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "floors", models.AnswerRequest{
		Value: json.RawMessage(`true`),
	})
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.Error(t, err)
	var ce *cherrors.ChecklistError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"Windows"}, ce.MissingItems)
	assert.Contains(t, ce.Message, "Windows")
}

func TestSubmit_NonDraftFails(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))
}

func TestLock_StateMachine(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	// cannot lock a draft
	_, err = f.service.Lock(context.Background(), tenant, instance.ID)
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)

	locked, err := f.service.Lock(context.Background(), tenant, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusLocked, locked.Status)

	// locked is terminal
	_, err = f.service.Lock(context.Background(), tenant, instance.ID)
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))
}

func TestPromote_DraftFails(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StageCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.Promote(context.Background(), tenant, instance.ID, models.StageFinalReport)
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))
	assert.Equal(t, "Cannot promote draft checklist", err.Error())
}

func TestPromote_ClonesItemsVerbatim(t *testing.T) {
	f := newFixture()
	desc := "baseboards too"
	three := 3
	f.templates.addTemplate(tenant, "unit-1", 2,
		models.TemplateItem{Key: "a", Title: "A", Type: models.ItemTypeBool, Required: true},
		models.TemplateItem{Key: "b", Title: "B", Description: &desc, Type: models.ItemTypePhotoOnly, RequiresPhoto: true, PhotoMin: &three},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StageCleaning,
	})
	require.NoError(t, err)

	// add a manual item so promotion covers more than template clones
	_, err = f.service.AddItem(context.Background(), tenant, instance.ID, models.AddItemRequest{
		Key:   "c",
		Title: "C",
		Type:  models.ItemTypeText,
	})
	require.NoError(t, err)

	_, err = f.service.Answer(context.Background(), tenant, instance.ID, "a", models.AnswerRequest{Value: json.RawMessage(`true`)})
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)
	_, err = f.service.Lock(context.Background(), tenant, instance.ID)
	require.NoError(t, err)

	promoted, err := f.service.Promote(context.Background(), tenant, instance.ID, models.StageFinalReport)
	require.NoError(t, err)

	assert.Equal(t, models.StageFinalReport, promoted.Stage)
	assert.Equal(t, models.InstanceStatusDraft, promoted.Status)
	require.NotNil(t, promoted.ParentInstanceID)
	assert.Equal(t, instance.ID, *promoted.ParentInstanceID)
	assert.Equal(t, []string{"a", "b", "c"}, itemKeys(promoted.Items))

	b := promoted.ItemByKey("b")
	require.NotNil(t, b)
	assert.Equal(t, models.ItemTypePhotoOnly, b.Type)
	assert.True(t, b.RequiresPhoto)
	require.NotNil(t, b.PhotoMin)
	assert.Equal(t, 3, *b.PhotoMin)
	require.NotNil(t, b.Description)
	assert.Equal(t, desc, *b.Description)

	// answers do not carry over
	assert.Empty(t, promoted.Answers)
}

func TestAddItem_DuplicateKeyFails(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	_, err = f.service.AddItem(context.Background(), tenant, instance.ID, models.AddItemRequest{
		Key:   "floors",
		Title: "Floors again",
		Type:  models.ItemTypeBool,
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindDuplicateKey))
}

func TestItemEditing_DraftOnly(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	instance, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID: "unit-1",
		Stage:  models.StagePreCleaning,
	})
	require.NoError(t, err)

	newTitle := "Floors and baseboards"
	updated, err := f.service.UpdateItem(context.Background(), tenant, instance.ID, "floors", models.UpdateItemRequest{
		Title: &newTitle,
	})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.ItemByKey("floors").Title)

	_, err = f.service.Submit(context.Background(), tenant, instance.ID)
	require.NoError(t, err)

	_, err = f.service.UpdateItem(context.Background(), tenant, instance.ID, "floors", models.UpdateItemRequest{Title: &newTitle})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))

	_, err = f.service.RemoveItem(context.Background(), tenant, instance.ID, "floors")
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))

	_, err = f.service.AddItem(context.Background(), tenant, instance.ID, models.AddItemRequest{
		Key:   "late",
		Title: "Late",
		Type:  models.ItemTypeBool,
	})
	require.Error(t, err)
	assert.True(t, cherrors.IsKind(err, cherrors.KindIllegalState))
}

func TestGetByLookups(t *testing.T) {
	f := newFixture()
	f.templates.addTemplate(tenant, "unit-1", 1,
		models.TemplateItem{Key: "floors", Title: "Floors", Type: models.ItemTypeBool},
	)
	cleaningID := "cleaning-1"

	created, err := f.service.CreateInstance(context.Background(), tenant, models.CreateInstanceRequest{
		UnitID:     "unit-1",
		Stage:      models.StagePreCleaning,
		CleaningID: &cleaningID,
	})
	require.NoError(t, err)

	byUnit, err := f.service.GetByUnitAndStage(context.Background(), tenant, "unit-1", models.StagePreCleaning)
	require.NoError(t, err)
	require.NotNil(t, byUnit)
	assert.Equal(t, created.ID, byUnit.ID)

	byCleaning, err := f.service.GetByCleaningAndStage(context.Background(), tenant, cleaningID, models.StagePreCleaning)
	require.NoError(t, err)
	require.NotNil(t, byCleaning)
	assert.Equal(t, created.ID, byCleaning.ID)

	missing, err := f.service.GetByRepairAndStage(context.Background(), tenant, "nope", models.StageRepairInspection)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
