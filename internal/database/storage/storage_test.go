package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/database/client"
	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/logger"
	"github.com/google/uuid"
)

func newTestStorages(t *testing.T) (*PhotoStorage, *TagStorage) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	c, err := client.NewSQLiteClient(dsn, logger.Discard())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewPhotoStorage(c.Gorm, c.DB, logger.Discard()), NewTagStorage(c.Gorm, logger.Discard())
}

func strPtr(s string) *string { return &s }

func readyUpdate(base string, captured time.Time) domain.ReadyUpdate {
	iso := 200
	f := 4.0
	return domain.ReadyUpdate{
		ThumbnailKey:      domain.ThumbnailProfile.Key(base),
		GalleryKey:        domain.GalleryProfile.Key(base),
		OriginalCreatedAt: captured,
		Metadata: domain.CaptureMetadata{
			Make:    strPtr("Canon"),
			Model:   strPtr("EOS R6"),
			ISO:     &iso,
			FNumber: &f,
		},
	}
}

// seedReady создаёт запись и сразу доводит её до ready.
func seedReady(t *testing.T, photos *PhotoStorage, fullKey string, captured time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	if _, err := photos.CreatePending(ctx, domain.PhotoNameFromKey(fullKey), fullKey); err != nil {
		t.Fatalf("CreatePending %s: %v", fullKey, err)
	}
	pk, err := photos.MarkReady(ctx, fullKey, readyUpdate(domain.BaseName(fullKey), captured))
	if err != nil {
		t.Fatalf("MarkReady %s: %v", fullKey, err)
	}
	return pk
}

func TestCreatePendingThenMarkReady(t *testing.T) {
	photos, _ := newTestStorages(t)
	ctx := context.Background()

	pk, err := photos.CreatePending(ctx, "IMG_0001.jpg", "full/IMG_0001.jpg")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}

	got, err := photos.GetByFullKey(ctx, "full/IMG_0001.jpg")
	if err != nil {
		t.Fatalf("GetByFullKey: %v", err)
	}
	if got.PK != pk || got.Status != domain.StatusPending {
		t.Fatalf("unexpected pending record %+v", got)
	}
	if got.ThumbnailKey != nil || got.GalleryKey != nil {
		t.Fatal("derived keys must be null while pending")
	}

	captured := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	readyPK, err := photos.MarkReady(ctx, "full/IMG_0001.jpg", readyUpdate("IMG_0001", captured))
	if err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if readyPK != pk {
		t.Fatalf("MarkReady returned pk %s, want %s", readyPK, pk)
	}

	got, err = photos.GetByFullKey(ctx, "full/IMG_0001.jpg")
	if err != nil {
		t.Fatalf("GetByFullKey: %v", err)
	}
	if !got.Displayable() {
		t.Fatalf("record must be displayable after MarkReady: %+v", got)
	}
	if *got.ThumbnailKey != "thumbnail/IMG_0001.webp" || *got.GalleryKey != "gallery/IMG_0001.webp" {
		t.Fatalf("unexpected keys %s %s", *got.ThumbnailKey, *got.GalleryKey)
	}
	if got.CameraMake == nil || *got.CameraMake != "Canon" || got.ISO == nil || *got.ISO != 200 {
		t.Fatalf("metadata not stored: %+v", got)
	}
	if got.FocalLength != nil || got.ExposureTime != nil {
		t.Fatal("missing metadata must stay null")
	}
	if !got.OriginalCreatedAt.Equal(captured) {
		t.Fatalf("original_created_at = %s, want %s", got.OriginalCreatedAt, captured)
	}
}

func TestCreatePendingResetsReprocessedRecord(t *testing.T) {
	photos, _ := newTestStorages(t)
	ctx := context.Background()

	pk := seedReady(t, photos, "full/IMG_0002.jpg", time.Now().UTC())

	again, err := photos.CreatePending(ctx, "IMG_0002.jpg", "full/IMG_0002.jpg")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if again != pk {
		t.Fatalf("re-submitting the same key must keep pk %s, got %s", pk, again)
	}

	got, err := photos.GetByFullKey(ctx, "full/IMG_0002.jpg")
	if err != nil {
		t.Fatalf("GetByFullKey: %v", err)
	}
	if got.Status != domain.StatusPending || got.ThumbnailKey != nil || got.GalleryKey != nil {
		t.Fatalf("derived state not reset: %+v", got)
	}
	if got.CameraMake != nil || got.ISO != nil || got.FNumber != nil {
		t.Fatalf("metadata not reset: %+v", got)
	}
}

func TestMarkReadyInsertsMissingRecord(t *testing.T) {
	photos, _ := newTestStorages(t)
	ctx := context.Background()

	pk, err := photos.MarkReady(ctx, "full/DSC_7.NEF.jpg", readyUpdate("DSC_7", time.Now().UTC()))
	if err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	got, err := photos.GetByFullKey(ctx, "full/DSC_7.NEF.jpg")
	if err != nil {
		t.Fatalf("GetByFullKey: %v", err)
	}
	if got.PK != pk || got.PhotoName != "DSC_7.NEF.jpg" || got.Status != domain.StatusReady {
		t.Fatalf("unexpected inserted record %+v", got)
	}
}

func TestMarkErrorOnlyTouchesExistingRecords(t *testing.T) {
	photos, _ := newTestStorages(t)
	ctx := context.Background()

	found, err := photos.MarkError(ctx, "full/missing.jpg")
	if err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if found {
		t.Fatal("MarkError must report no record for unknown key")
	}
	if _, err := photos.GetByFullKey(ctx, "full/missing.jpg"); !errors.Is(err, domain.ErrPhotoNotFound) {
		t.Fatalf("MarkError must not create a record, got %v", err)
	}

	if _, err := photos.CreatePending(ctx, "a.jpg", "full/a.jpg"); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	found, err = photos.MarkError(ctx, "full/a.jpg")
	if err != nil || !found {
		t.Fatalf("MarkError = %v, %v", found, err)
	}
	got, _ := photos.GetByFullKey(ctx, "full/a.jpg")
	if got.Status != domain.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
}

func TestUpsertRejectsUnknownStatus(t *testing.T) {
	photos, _ := newTestStorages(t)
	ctx := context.Background()

	photo := domain.Photo{
		PK:                uuid.New(),
		Status:            domain.Status("archived"),
		PhotoName:         "a.jpg",
		FullKey:           "full/a.jpg",
		OriginalCreatedAt: time.Now().UTC(),
	}
	if _, err := photos.upsert(ctx, &photo, map[string]interface{}{"status": photo.Status}); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
	if _, err := photos.GetByFullKey(ctx, "full/a.jpg"); !errors.Is(err, domain.ErrPhotoNotFound) {
		t.Fatalf("rejected upsert must not write, got %v", err)
	}

	photo.Status = domain.StatusDisabled
	if _, err := photos.upsert(ctx, &photo, map[string]interface{}{"status": domain.Status("gone")}); err == nil {
		t.Fatal("expected invalid status in updates to be rejected")
	}
}

func TestListReadyQueryEmbedsTagSubquery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildListReadyQuery(domain.PhotoFilter{
		Tags: []string{"sea", "mountains"},
		From: &from,
	}).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	const sub = "pk IN (SELECT pt.photo_pk FROM photo_tags pt JOIN tags t ON t.pk = pt.tag_pk WHERE t.name IN (?,?))"
	if !strings.Contains(query, sub) {
		t.Fatalf("query lacks tag subquery:\n%s", query)
	}
	if len(args) != 4 || args[0] != "ready" || args[1] != "sea" || args[2] != "mountains" {
		t.Fatalf("args = %v", args)
	}
	if got, ok := args[3].(time.Time); !ok || !got.Equal(from) {
		t.Fatalf("from arg = %v", args[3])
	}
}

func TestListReadyFilters(t *testing.T) {
	photos, tags := newTestStorages(t)
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }
	pkA := seedReady(t, photos, "full/a.jpg", day(1))
	pkB := seedReady(t, photos, "full/b.jpg", day(5))
	pkC := seedReady(t, photos, "full/c.jpg", day(10))

	if _, err := photos.CreatePending(ctx, "pending.jpg", "full/pending.jpg"); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	seedReady(t, photos, "full/broken.jpg", day(3))
	if _, err := photos.MarkError(ctx, "full/broken.jpg"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	travel, err := tags.CreateTag(ctx, "travel", nil)
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	film, err := tags.CreateTag(ctx, "film", strPtr("shot on film"))
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := tags.AssignTag(ctx, travel.PK, []uuid.UUID{pkA, pkC}); err != nil {
		t.Fatalf("AssignTag: %v", err)
	}
	if err := tags.AssignTag(ctx, film.PK, []uuid.UUID{pkB}); err != nil {
		t.Fatalf("AssignTag: %v", err)
	}

	pks := func(list []domain.Photo) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(list))
		for _, p := range list {
			out = append(out, p.PK)
		}
		return out
	}
	same := func(a, b []uuid.UUID) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	from, to := day(2), day(10)

	cases := []struct {
		name   string
		filter domain.PhotoFilter
		want   []uuid.UUID
	}{
		{"newest first by default", domain.PhotoFilter{}, []uuid.UUID{pkC, pkB, pkA}},
		{"oldest first", domain.PhotoFilter{Order: domain.SortOldestFirst}, []uuid.UUID{pkA, pkB, pkC}},
		{"single tag", domain.PhotoFilter{Tags: []string{"travel"}, Order: domain.SortOldestFirst}, []uuid.UUID{pkA, pkC}},
		{"any of tags", domain.PhotoFilter{Tags: []string{"travel", "film"}}, []uuid.UUID{pkC, pkB, pkA}},
		{"unknown tag", domain.PhotoFilter{Tags: []string{"nope"}}, []uuid.UUID{}},
		{"date range inclusive", domain.PhotoFilter{From: &from, To: &to}, []uuid.UUID{pkC, pkB}},
		{"tag and date", domain.PhotoFilter{Tags: []string{"travel"}, From: &from}, []uuid.UUID{pkC}},
		{"limit", domain.PhotoFilter{Limit: 2}, []uuid.UUID{pkC, pkB}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := photos.ListReady(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListReady: %v", err)
			}
			if got := pks(list); !same(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}

	random, err := photos.ListReady(ctx, domain.PhotoFilter{Random: true})
	if err != nil {
		t.Fatalf("ListReady random: %v", err)
	}
	if len(random) != 3 {
		t.Fatalf("random order must still return every ready photo, got %d", len(random))
	}
	for _, p := range random {
		if !p.Displayable() {
			t.Fatalf("non-displayable photo listed: %+v", p)
		}
	}
}

func TestDeleteByPKsRemovesRecordsAndLinks(t *testing.T) {
	photos, tags := newTestStorages(t)
	ctx := context.Background()

	now := time.Now().UTC()
	pk1 := seedReady(t, photos, "full/one.jpg", now)
	pk2 := seedReady(t, photos, "full/two.jpg", now)
	pk3 := seedReady(t, photos, "full/three.jpg", now)

	tag, err := tags.CreateTag(ctx, "keep", nil)
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := tags.AssignTag(ctx, tag.PK, []uuid.UUID{pk1, pk3}); err != nil {
		t.Fatalf("AssignTag: %v", err)
	}

	deleted, err := photos.DeleteByPKs(ctx, []uuid.UUID{pk1, pk2})
	if err != nil {
		t.Fatalf("DeleteByPKs: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted %d, want 2", deleted)
	}

	left, err := photos.GetByPKs(ctx, []uuid.UUID{pk1, pk2, pk3})
	if err != nil {
		t.Fatalf("GetByPKs: %v", err)
	}
	if len(left) != 1 || left[0].PK != pk3 {
		t.Fatalf("unexpected survivors %+v", left)
	}

	tagged, err := photos.ListReady(ctx, domain.PhotoFilter{Tags: []string{"keep"}})
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(tagged) != 1 || tagged[0].PK != pk3 {
		t.Fatalf("tag links of deleted photos must be gone, got %+v", tagged)
	}
}

func TestTagCRUD(t *testing.T) {
	photos, tags := newTestStorages(t)
	ctx := context.Background()

	pk := seedReady(t, photos, "full/x.jpg", time.Now().UTC())

	tag, err := tags.CreateTag(ctx, "  portraits ", nil)
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if tag.Name != "portraits" {
		t.Fatalf("tag name must be trimmed, got %q", tag.Name)
	}
	if _, err := tags.CreateTag(ctx, "portraits", nil); !errors.Is(err, domain.ErrTagExists) {
		t.Fatalf("duplicate tag name: err = %v, want ErrTagExists", err)
	}

	for i := 0; i < 2; i++ {
		if err := tags.AssignTag(ctx, tag.PK, []uuid.UUID{pk}); err != nil {
			t.Fatalf("AssignTag #%d: %v", i, err)
		}
	}
	if err := tags.AssignTag(ctx, uuid.New(), []uuid.UUID{pk}); !errors.Is(err, domain.ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound, got %v", err)
	}

	if err := tags.UnassignTag(ctx, tag.PK, []uuid.UUID{pk}); err != nil {
		t.Fatalf("UnassignTag: %v", err)
	}
	list, _ := photos.ListReady(ctx, domain.PhotoFilter{Tags: []string{"portraits"}})
	if len(list) != 0 {
		t.Fatalf("expected no tagged photos after unassign, got %d", len(list))
	}

	all, err := tags.ListTags(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListTags = %v, %v", all, err)
	}
	if err := tags.DeleteTag(ctx, tag.PK); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	if err := tags.DeleteTag(ctx, tag.PK); !errors.Is(err, domain.ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound on second delete, got %v", err)
	}
}
