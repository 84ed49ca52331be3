package service

import (
	"bytes"
	"context"
	"io/fs"
	"mime/multipart"
	"path/filepath"
	"testing"

	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/omr"
	"omr_grading_backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func sheetHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("sheet", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["sheet"][0]
}

func localStorage(t *testing.T) (*StorageService, string) {
	t.Helper()
	dir := t.TempDir()
	return &StorageService{Provider: &LocalStorageProvider{
		Config: &config.StorageConfig{Type: "local", LocalPath: dir},
	}}, dir
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestCreateRejectsBadSheetFormatBeforeStoring(t *testing.T) {
	storage, dir := localStorage(t)
	svc := NewSubmissionService(nil, storage, nil)

	_, err := svc.Create(context.Background(), CreateSubmissionInput{
		UserID:         7,
		ExamName:       "Midterm",
		TotalQuestions: 2,
		Sheet:          sheetHeader(t, "sheet.pdf", []byte("%PDF")),
	})

	var verr *omr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, storedFiles(t, dir))
}

func TestCreateRemovesSheetWhenInsertFails(t *testing.T) {
	// no submissions table, so the insert fails after the upload succeeded
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	storage, dir := localStorage(t)
	svc := NewSubmissionService(repository.NewSubmissionRepository(db), storage, nil)

	_, err = svc.Create(context.Background(), CreateSubmissionInput{
		UserID:         7,
		ExamName:       "Midterm",
		TotalQuestions: 2,
		Sheet:          sheetHeader(t, "sheet.jpg", []byte("jpeg bytes")),
	})

	require.Error(t, err)
	assert.Empty(t, storedFiles(t, dir), "orphaned sheet left in the blob store")
}
