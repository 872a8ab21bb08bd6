package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyflow/internal/apperr"
	"github.com/example/studyflow/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), Config{
		Type:       TypeSQLite,
		Path:       filepath.Join(t.TempDir(), "test.db"),
		MaxRetries: 2,
	}, logger)
	require.NoError(t, err)
	db.retryInitial = time.Millisecond
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(t time.Time) *time.Time { return &t }

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "oracle"}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Type: TypePostgres}, nil)
	assert.Error(t, err, "postgres needs a DSN")
}

func TestDriverAndDSNForMySQL(t *testing.T) {
	driver, dsn, err := driverAndDSN(Config{Type: TypeMySQL, DSN: "app:secret@tcp(db:3306)/studyflow"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ClientFoundRows)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "studyflow", cfg.DBName)
}

func TestDocumentPrimitives(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	n, err := db.Count(ctx, "users", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	matched, err := db.UpdateOne(ctx, "users", Doc{"id": "u1"}, Doc{"username": "ann"})
	require.NoError(t, err)
	assert.Zero(t, matched)

	require.NoError(t, db.InsertOne(ctx, "users", Doc{
		"id": "u1", "chat_id": int64(42), "username": "ann",
		"notification_enabled": true, "created_at": testNow,
	}))

	// Matched, not changed: same value still counts.
	matched, err = db.UpdateOne(ctx, "users", Doc{"id": "u1"}, Doc{"username": "ann"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), matched)

	var user models.User
	require.NoError(t, db.FindOne(ctx, &user, "users", Doc{"id": "u1"}))
	assert.Equal(t, int64(42), user.ChatID)

	err = db.FindOne(ctx, &user, "users", Doc{"id": "missing"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = db.InsertOne(ctx, "users", Doc{"id": "u1", "chat_id": int64(1), "created_at": testNow})
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	n, err = db.Count(ctx, "users", Doc{"notification_enabled": true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.DeleteOne(ctx, "users", Doc{"id": "u1"}))
	n, err = db.Count(ctx, "users", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentPrimitivesRejectBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Count(ctx, "sqlite_master", nil)
	assert.Error(t, err)

	_, err = db.UpdateOne(ctx, "users", Doc{"id": "u1"}, Doc{"username; DROP TABLE users": "x"})
	assert.Error(t, err)

	assert.Error(t, db.DeleteOne(ctx, "users", nil), "empty filter would delete everything")
}

func TestUpsertUpdatesThenInserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	key := Doc{"user_id": "u1"}

	require.NoError(t, db.Upsert(ctx, "user_unlocks", key, Doc{"word_unlocked": true, "updated_at": testNow}))
	require.NoError(t, db.Upsert(ctx, "user_unlocks", key, Doc{"sentence_unlocked": true, "updated_at": testNow}))

	n, err := db.Count(ctx, "user_unlocks", key)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := NewCompletionRepository(db).LoadUnlocks(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, info.WordUnlocked)
	assert.True(t, info.SentenceUnlocked)
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate("op", nil))

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.True(t, errors.Is(translate("op", busy), apperr.ErrTransientStore))

	deadlock := &pq.Error{Code: "40P01"}
	assert.True(t, errors.Is(translate("op", deadlock), apperr.ErrTransientStore))

	connLost := &pq.Error{Code: "08006"}
	assert.True(t, errors.Is(translate("op", connLost), apperr.ErrTransientStore))

	lockWait := &mysql.MySQLError{Number: 1205}
	assert.True(t, errors.Is(translate("op", lockWait), apperr.ErrTransientStore))

	syntax := &pq.Error{Code: "42601"}
	err := translate("op", syntax)
	assert.False(t, apperr.IsRetryable(err))

	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isUniqueViolation(syntax))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	calls := 0
	err := db.retry(ctx, "flaky", func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrLocked}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = db.retry(ctx, "down", func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.True(t, errors.Is(err, apperr.ErrTransientStore))
	assert.Equal(t, 3, calls, "one attempt plus two retries")

	calls = 0
	err = db.retry(ctx, "bad", func() error {
		calls++
		return apperr.InvalidInput("bad", "nope")
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	assert.Equal(t, 1, calls, "permanent errors are not retried")
}

func TestMemoryStateRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMemoryStateRepository(db)

	got, err := repo.Find(ctx, "u1", "w1")
	require.NoError(t, err)
	assert.Nil(t, got)

	state := models.MemoryState{
		UserID:          "u1",
		ItemID:          "w1",
		Module:          models.ModuleWord,
		MasteryLevel:    models.MasteryRemembered,
		EasinessFactor:  2.6,
		IntervalDays:    6,
		RepetitionCount: 2,
		LastQuality:     5,
		LastReviewedAt:  ptr(testNow),
		NextReviewAt:    ptr(testNow.AddDate(0, 0, 6)),
		UpdatedAt:       testNow,
	}
	require.NoError(t, repo.Upsert(ctx, state))
	require.NoError(t, repo.Upsert(ctx, state))

	got, err = repo.Find(ctx, "u1", "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state, *got)

	n, err := db.Count(ctx, "memory_states", Doc{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "upsert never duplicates a row")

	remembered, err := repo.CountRemembered(ctx, "u1", models.ModuleWord)
	require.NoError(t, err)
	assert.Equal(t, 1, remembered)
}

func TestMemoryStateListDueAndStatistics(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMemoryStateRepository(db)
	endOfDay := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	seed := []models.MemoryState{
		{ItemID: "a", EasinessFactor: 2.5, NextReviewAt: ptr(testNow.Add(-48 * time.Hour)), MasteryLevel: models.MasteryFuzzy},
		{ItemID: "b", EasinessFactor: 1.9, NextReviewAt: ptr(testNow.Add(10 * time.Hour)), MasteryLevel: models.MasteryUnfamiliar},
		{ItemID: "c", EasinessFactor: 2.5, NextReviewAt: ptr(testNow.Add(-72 * time.Hour)), MasteryLevel: models.MasteryRemembered},
		{ItemID: "d", EasinessFactor: 1.5, NextReviewAt: ptr(testNow.AddDate(0, 0, 3)), MasteryLevel: models.MasteryRemembered},
		{ItemID: "e", EasinessFactor: 1.3, NextReviewAt: ptr(testNow.Add(-time.Hour)), Skipped: true, MasteryLevel: models.MasteryUnfamiliar},
	}
	for _, s := range seed {
		s.UserID = "u1"
		s.Module = models.ModuleLetter
		s.UpdatedAt = testNow
		require.NoError(t, repo.Upsert(ctx, s))
	}

	due, err := repo.ListDue(ctx, "u1", models.ModuleLetter, endOfDay, 0)
	require.NoError(t, err)
	var ids []string
	for _, s := range due {
		ids = append(ids, s.ItemID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)

	due, err = repo.ListDue(ctx, "u1", "", endOfDay, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b", due[0].ItemID)

	stats, err := repo.Statistics(ctx, "u1", endOfDay)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalItems)
	assert.Equal(t, 3, stats.DueToday)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.ByMastery[models.MasteryRemembered])
	assert.Equal(t, 2, stats.ByMastery[models.MasteryUnfamiliar])
	assert.InDelta(t, (2.5+1.9+2.5+1.5+1.3)/5, stats.AvgEasiness, 1e-9)

	perUser, err := repo.CountDueByUser(ctx, endOfDay)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 3}, perUser)

	empty, err := repo.Statistics(ctx, "nobody", endOfDay)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalItems)
	assert.Equal(t, 2.5, empty.AvgEasiness)
}

func TestMemoryStateSkip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewMemoryStateRepository(db)
	ref := models.LearningItemRef{ID: "w9", Module: models.ModuleWord}

	require.NoError(t, repo.Skip(ctx, "u1", ref, testNow))
	got, err := repo.Find(ctx, "u1", "w9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Skipped)
	assert.Equal(t, models.MasteryUnfamiliar, got.MasteryLevel)

	got.Skipped = false
	got.IntervalDays = 6
	require.NoError(t, repo.Upsert(ctx, *got))
	require.NoError(t, repo.Skip(ctx, "u1", ref, testNow))

	got, err = repo.Find(ctx, "u1", "w9")
	require.NoError(t, err)
	assert.True(t, got.Skipped)
	assert.Equal(t, 6, got.IntervalDays, "skipping keeps the schedule")
}

func TestItemRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	items := NewItemRepository(db)
	states := NewMemoryStateRepository(db)

	for i, id := range []string{"l3", "l1", "l2"} {
		require.NoError(t, items.Upsert(ctx, models.LearningItem{
			ID: id, Module: models.ModuleLetter, LessonID: 1, Position: []int{3, 1, 2}[i],
			Prompt: id, Answer: id,
		}))
	}
	require.NoError(t, items.Upsert(ctx, models.LearningItem{ID: "w1", Module: models.ModuleWord, LessonID: 8, Prompt: "cat", Answer: "кот"}))
	require.NoError(t, items.Upsert(ctx, models.LearningItem{ID: "w1", Module: models.ModuleWord, LessonID: 8, Prompt: "cat", Answer: "кошка"}))

	err := items.Upsert(ctx, models.LearningItem{ID: "x", Module: "poem"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	lesson, err := items.ListLessonItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lesson, 3)
	assert.Equal(t, "l1", lesson[0].ID)
	assert.Equal(t, "l3", lesson[2].ID)

	w, err := items.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "кошка", w.Answer)

	_, err = items.Get(ctx, "nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	n, err := items.CountByModule(ctx, models.ModuleLetter)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// l1 reviewed and due, l2 skipped, l3 untouched.
	require.NoError(t, states.Upsert(ctx, models.MemoryState{
		UserID: "u1", ItemID: "l1", Module: models.ModuleLetter, MasteryLevel: models.MasteryFuzzy,
		EasinessFactor: 2.3, IntervalDays: 1, NextReviewAt: ptr(testNow.Add(-time.Hour)), UpdatedAt: testNow,
	}))
	require.NoError(t, states.Skip(ctx, "u1", models.LearningItemRef{ID: "l2", Module: models.ModuleLetter}, testNow))

	fresh, err := items.ListNewItems(ctx, "u1", models.ModuleLetter, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.LearningItemRef{{ID: "l3", Module: models.ModuleLetter}}, fresh)

	due, err := items.ListDueItems(ctx, "u1", models.ModuleLetter, testNow)
	require.NoError(t, err)
	assert.Equal(t, []models.LearningItemRef{{ID: "l1", Module: models.ModuleLetter}}, due)
}

func TestSnapshotRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSnapshotRepository(db)

	got, err := repo.Load(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := models.SessionSnapshot{
		SessionID:     "s-1",
		UserID:        "u1",
		LessonID:      1,
		Round:         2,
		Phase:         "TODAY_REMEDY",
		AnsweredCount: 30,
		CurrentIndex:  27,
		Status:        models.StatusInProgress,
		Retries:       1,
		RoundItems:    []models.LearningItemRef{{ID: "l1", Module: models.ModuleLetter}, {ID: "l2", Module: models.ModuleLetter}},
		Carryover:     []models.LearningItemRef{{ID: "old", Module: models.ModuleLetter}},
		FinalMisses:   []models.LearningItemRef{{ID: "l2", Module: models.ModuleLetter}},
		FinalCorrect:  8,
		FinalTotal:    9,
		Evaluation:    &models.RoundEvaluation{Round: 1, PassRate: 0.5},
		UpdatedAt:     testNow,
	}
	require.NoError(t, repo.Save(ctx, snap))
	require.NoError(t, repo.Save(ctx, snap))

	got, err = repo.Load(ctx, "u1", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap, *got)

	other := snap
	other.LessonID = 2
	other.Evaluation = nil
	other.Carryover = nil
	other.FinalMisses = nil
	other.UpdatedAt = testNow.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, other))

	done := snap
	done.LessonID = 3
	done.Status = models.StatusCompleted
	done.UpdatedAt = testNow.Add(time.Hour)
	require.NoError(t, repo.Save(ctx, done))

	live, err := repo.FindLive(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, other, *live)

	require.NoError(t, repo.Clear(ctx, "u1", 2))
	live, err = repo.FindLive(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, 1, live.LessonID)

	live, err = repo.FindLive(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewUserRepository(db)

	require.NoError(t, repo.Register(ctx, models.User{ID: "u1", ChatID: 10, Username: "ann", NotificationEnabled: true, CreatedAt: testNow}))
	require.NoError(t, repo.Register(ctx, models.User{ID: "u2", ChatID: 20, Username: "bob", CreatedAt: testNow}))
	require.NoError(t, repo.Register(ctx, models.User{ID: "u1", ChatID: 11, Username: "ann2", CreatedAt: testNow.Add(time.Hour)}))

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), u.ChatID)
	assert.Equal(t, "ann2", u.Username)
	assert.True(t, u.NotificationEnabled, "re-registering keeps preferences")
	assert.True(t, u.CreatedAt.Equal(testNow))

	users, err := repo.GetUsersForNotification(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)

	require.NoError(t, repo.SetNotifications(ctx, "u2", true))
	users, err = repo.GetUsersForNotification(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	err = repo.SetNotifications(ctx, "ghost", true)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = repo.GetByID(ctx, "ghost")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCompletionRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewCompletionRepository(db)

	info, err := repo.LoadUnlocks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UnlockInfo{}, info)

	for _, id := range []int{1, 2} {
		require.NoError(t, repo.Record(ctx, models.LessonCompletion{
			UserID: "u1", LessonID: id, Rounds: 3, LastPassRate: 0.9, CompletedAt: testNow,
		}, models.ModuleLetter))
	}
	require.NoError(t, repo.Record(ctx, models.LessonCompletion{
		UserID: "u1", LessonID: 2, Rounds: 3, LastPassRate: 1, CompletedAt: testNow.Add(time.Hour),
	}, models.ModuleLetter))
	require.NoError(t, repo.Record(ctx, models.LessonCompletion{
		UserID: "u1", LessonID: 8, Rounds: 2, LastPassRate: 0.8, CompletedAt: testNow,
	}, models.ModuleWord))

	n, err := repo.CountCompleted(ctx, "u1", models.ModuleLetter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountCompleted(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1.0, list[1].LastPassRate)

	want := models.UnlockInfo{WordUnlocked: true, LetterProgress: 0.5}
	require.NoError(t, repo.SaveUnlocks(ctx, "u1", want, testNow))
	info, err = repo.LoadUnlocks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, info)
}
