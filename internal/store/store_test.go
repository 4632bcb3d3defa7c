package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/store"
	"github.com/archoctopus/archoctopus-go/internal/testutil"
)

func TestTaskLifecycle(t *testing.T) {
	s := testutil.SetupTestStore(t)

	task, err := s.CreateTask("https://www.archdaily.com/1/house")
	require.NoError(t, err)
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.StatusNotDownloaded, task.Status)
	assert.True(t, task.IsFolder)
	assert.True(t, task.IsVisible)
	assert.NotEmpty(t, task.Date)
	assert.Empty(t, task.Tags)

	s.SetTaskName(task.ID, "House", "archdaily", "/tmp/Archdaily/House")
	s.SetTaskTotal(task.ID, 12)
	s.SetDownloadCount(task.ID, 7)
	s.SetTaskFolder(task.ID, false)
	s.SetTaskCover(task.ID, "data:image/jpeg;base64,xx")

	got, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "House", got.Name)
	assert.Equal(t, "archdaily", got.Domain)
	assert.Equal(t, "/tmp/Archdaily/House", got.Dir)
	assert.Equal(t, models.StatusDownloaded, got.Status)
	assert.Equal(t, 12, got.TotalCount)
	assert.Equal(t, 7, got.DownloadCount)
	assert.False(t, got.IsFolder)
	assert.Equal(t, "data:image/jpeg;base64,xx", got.Cover)

	t.Run("hide and list", func(t *testing.T) {
		s.HideTask(task.ID)
		assert.Empty(t, s.ListTasks(false))
		assert.Len(t, s.ListTasks(true), 1)
		s.ShowTask(task.ID)
		assert.Len(t, s.ListTasks(false), 1)
	})

	t.Run("reset clears items and counters", func(t *testing.T) {
		s.RegisterItem(task.ID, "https://img/1.jpg", "")
		s.HideTask(task.ID)
		s.ResetTask(task.ID)

		got, err := s.GetTask(task.ID)
		require.NoError(t, err)
		assert.Zero(t, got.TotalCount)
		assert.Zero(t, got.DownloadCount)
		assert.True(t, got.IsVisible)
		assert.Empty(t, s.ListItems(task.ID))
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := s.GetTask(999)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetTaskByURL("https://nowhere")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestItems(t *testing.T) {
	s := testutil.SetupTestStore(t)
	task, err := s.CreateTask("https://example.com/gallery")
	require.NoError(t, err)

	assert.False(t, s.ItemExists(task.ID, "https://img/a.jpg"))
	s.RegisterItem(task.ID, "https://img/a.jpg", "plans")
	s.RegisterItem(task.ID, "https://img/a.jpg", "plans")
	s.RegisterItem(task.ID, "https://img/b.jpg", "")
	assert.True(t, s.ItemExists(task.ID, "https://img/a.jpg"))

	s.MarkItem(task.ID, models.Outcome{
		Status: models.StatusDownloaded, URL: "https://img/a.jpg",
		Name: "1_a.jpeg", Type: "jpeg", Width: 800, Height: 600, Bytes: 1234,
	})
	s.MarkItem(task.ID, models.Outcome{Status: models.StatusFiltered, URL: "https://img/b.jpg", Name: "ignored"})

	items := s.ListItems(task.ID)
	require.Len(t, items, 2)
	assert.Equal(t, "https://img/a.jpg", items[0].URL)
	assert.Equal(t, "plans", items[0].SubDir)
	assert.Equal(t, models.StatusDownloaded, items[0].Status)
	assert.Equal(t, "1_a.jpeg", items[0].Name)
	assert.Equal(t, 800, items[0].Width)
	assert.Equal(t, int64(1234), items[0].Bytes)
	assert.Equal(t, models.StatusFiltered, items[1].Status)
	assert.Empty(t, items[1].Name)

	counts := s.CountItems(task.ID)
	assert.Equal(t, 1, counts[models.StatusDownloaded])
	assert.Equal(t, 1, counts[models.StatusFiltered])

	first, err := s.FirstDownloadedItem(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://img/a.jpg", first.URL)

	other, _ := s.CreateTask("https://example.com/other")
	assert.False(t, s.ItemExists(other.ID, "https://img/a.jpg"), "items are scoped per task")
}

func TestTags(t *testing.T) {
	s := testutil.SetupTestStore(t)
	task, _ := s.CreateTask("https://example.com/1")

	tag, err := s.AddTagToTask(task.ID, "  concrete ")
	require.NoError(t, err)
	assert.Equal(t, "concrete", tag.Name)

	_, err = s.AddTagToTask(task.ID, " ")
	assert.Error(t, err)

	names, err := s.SetTaskTags(task.ID, []string{"wood", "glass"})
	require.NoError(t, err)
	assert.Equal(t, []string{"glass", "wood"}, names)

	got, _ := s.GetTask(task.ID)
	assert.ElementsMatch(t, []string{"glass", "wood"}, got.Tags)

	tags := s.ListTags()
	require.Len(t, tags, 3)
	counts := map[string]int{}
	for _, tg := range tags {
		counts[tg.Name] = tg.TaskCount
	}
	assert.Equal(t, map[string]int{"concrete": 0, "glass": 1, "wood": 1}, counts)

	s.RemoveTagFromTask(task.ID, "wood")
	assert.Equal(t, []string{"glass"}, s.TaskTags(task.ID))

	glass, err := s.GetTag("glass")
	require.NoError(t, err)
	s.DeleteTag(glass.ID)
	assert.Empty(t, s.TaskTags(task.ID))
}

func TestPing(t *testing.T) {
	s := testutil.SetupTestStore(t)
	assert.NoError(t, s.Ping())
}
