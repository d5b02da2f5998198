package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
)

func TestDocumentService_Register_NewDocument(t *testing.T) {
	db, mock := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	clientID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE external_id = .+ FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"system_id"}))
	mock.ExpectExec(`INSERT INTO "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "download_clients" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.Register(context.Background(), &model.RegisterDocumentDTO{
		Metadata: model.DocumentMetadataDTO{
			ExternalID:   "119050843",
			RegNumber:    "119050843",
			CourtName:    "Київський районний суд",
			DecisionDate: "15.03.2024",
		},
	}, &clientID)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SystemID)
	assert.Equal(t, "119050843", resp.ExternalID)
	assert.True(t, resp.Classified)
	require.NotNil(t, resp.Classification)
	assert.Equal(t, "11", resp.Classification.CourtRegion)
	assert.Equal(t, "1", resp.Classification.InstanceType)
	assert.Equal(t, model.ClassificationSourceExtracted, resp.Classification.Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_Register_IdempotentReplaySkipsWrite(t *testing.T) {
	db, mock := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	systemID := uuid.New()
	clientID := uuid.New()
	classifiedAt := time.Now().UTC()

	// Fully populated stored row: nothing to merge, so no UPDATE is expected.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE external_id = .+ FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{
			"system_id", "external_id", "reg_number", "court_name",
			"court_region", "instance_type", "classification_source", "classification_date",
			"client_id",
		}).AddRow(
			systemID.String(), "119050843", "119050843", "Київський районний суд",
			"11", "1", model.ClassificationSourceExtracted, classifiedAt,
			clientID.String(),
		))
	mock.ExpectCommit()

	resp, err := svc.Register(context.Background(), &model.RegisterDocumentDTO{
		Metadata: model.DocumentMetadataDTO{
			ExternalID: "119050843",
			RegNumber:  "119050843",
			CourtName:  "Київський районний суд",
		},
	}, &clientID)
	require.NoError(t, err)
	assert.Equal(t, systemID.String(), resp.SystemID)
	assert.True(t, resp.Classified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_Register_MergeFillsOnlyNullFields(t *testing.T) {
	db, mock := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	systemID := uuid.New()

	// Stored row has no court name and no classification; the replay carries
	// both, so a single UPDATE fills them in.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE external_id = .+ FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"system_id", "external_id", "reg_number"}).
			AddRow(systemID.String(), "119050843", "119050843"))
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.Register(context.Background(), &model.RegisterDocumentDTO{
		Metadata: model.DocumentMetadataDTO{
			ExternalID: "119050843",
			CourtName:  "Львівський апеляційний суд",
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, systemID.String(), resp.SystemID)
	assert.True(t, resp.Classified)
	require.NotNil(t, resp.Classification)
	assert.Equal(t, "14", resp.Classification.CourtRegion)
	assert.Equal(t, "2", resp.Classification.InstanceType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_Register_RequiresExternalID(t *testing.T) {
	db, _ := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	_, err := svc.Register(context.Background(), &model.RegisterDocumentDTO{
		Metadata: model.DocumentMetadataDTO{CourtName: "Київський районний суд"},
	}, nil)
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestDocumentService_Register_FallsBackToRegNumber(t *testing.T) {
	db, mock := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE external_id = .+ FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"system_id"}))
	mock.ExpectExec(`INSERT INTO "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.Register(context.Background(), &model.RegisterDocumentDTO{
		Metadata: model.DocumentMetadataDTO{RegNumber: "755/123/24"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "755/123/24", resp.ExternalID)
	assert.False(t, resp.Classified)
	assert.Nil(t, resp.Classification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_OpenProgress(t *testing.T) {
	db, mock := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	taskID := uuid.New()
	clientID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "download_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO "document_download_progress"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "download_tasks" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.OpenProgress(context.Background(), &model.DownloadStartDTO{
		TaskID:     taskID.String(),
		DocumentID: "119050843",
	}, &clientID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_OpenProgress_UnknownTask(t *testing.T) {
	db, mock := setupTestDB(t)
	svc := NewDocumentService(db, disabledCache(t))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "download_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	err := svc.OpenProgress(context.Background(), &model.DownloadStartDTO{
		TaskID:     uuid.NewString(),
		DocumentID: "119050843",
	}, nil)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentService_CloseProgress(t *testing.T) {
	t.Run("closes an open record", func(t *testing.T) {
		db, mock := setupTestDB(t)
		svc := NewDocumentService(db, disabledCache(t))

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "document_download_progress" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := svc.CloseProgress(context.Background(), &model.DownloadCompleteDTO{
			TaskID:     uuid.NewString(),
			DocumentID: "119050843",
			Status:     model.ProgressStatusCompleted,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record is not found", func(t *testing.T) {
		db, mock := setupTestDB(t)
		svc := NewDocumentService(db, disabledCache(t))

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "document_download_progress" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := svc.CloseProgress(context.Background(), &model.DownloadCompleteDTO{
			TaskID:     uuid.NewString(),
			DocumentID: "119050843",
			Status:     model.ProgressStatusFailed,
		})
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
