package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

var trackCols = []string{"id", "user_id", "title", "file_name", "storage_path", "file_size", "category", "created_at"}

func TestTrackRepository_Get(t *testing.T) {
	database, mock := setupMockDB(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM tracks WHERE id = \\$1").
			WithArgs("t1").
			WillReturnRows(pgxmock.NewRows(trackCols).
				AddRow("t1", "u1", "demo", "demo.mp3", "u1/t1/demo.mp3", int64(1024), "demos", now))

		track, err := database.Tracks().Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "u1/t1/demo.mp3", track.StoragePath)
		assert.Equal(t, int64(1024), track.FileSize)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM tracks WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := database.Tracks().Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackRepository_GetMany(t *testing.T) {
	database, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .* FROM tracks WHERE id = ANY").
		WithArgs([]string{"t1", "missing"}).
		WillReturnRows(pgxmock.NewRows(trackCols).
			AddRow("t1", "u1", "demo", "demo.mp3", "u1/t1/demo.mp3", int64(1), "songs", time.Now()))

	tracks, err := database.Tracks().GetMany(ctx, []string{"t1", "missing"})
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
	assert.Contains(t, tracks, "t1")

	empty, err := database.Tracks().GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaylistRepository_SetTracks(t *testing.T) {
	database, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM playlist_tracks").
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO playlist_tracks").
		WithArgs("p1", []string{"t3", "t1", "t2"}, []int32{0, 1, 2}).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectExec("UPDATE playlists SET updated_at").
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := database.Playlists().SetTracks(ctx, "p1", []string{"t3", "t1", "t2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaylistRepository_TrackIDsOrdered(t *testing.T) {
	database, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT track_id\\s+FROM playlist_tracks\\s+WHERE playlist_id = \\$1\\s+ORDER BY position ASC").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"track_id"}).AddRow("t3").AddRow("t1"))

	ids, err := database.Playlists().TrackIDs(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaylistRepository_ContainsTrackEmpty(t *testing.T) {
	database, mock := setupMockDB(t)

	found, err := database.Playlists().ContainsTrack(context.Background(), nil, "t1")
	require.NoError(t, err)
	assert.False(t, found)
	// No query should be issued for an empty playlist set.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShareRepository_PlaylistIDsForEmail(t *testing.T) {
	database, mock := setupMockDB(t)

	mock.ExpectQuery("FROM playlist_shares\\s+WHERE lower\\(shared_with_email\\) = \\$1 AND status = \\$2").
		WithArgs("friend@example.com", ShareStatusAccepted).
		WillReturnRows(pgxmock.NewRows([]string{"playlist_id"}).AddRow("p1").AddRow("p2"))

	ids, err := database.Shares().PlaylistIDsForEmail(context.Background(), "  Friend@Example.COM ", ShareStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShareRepository_UpdateStatusMissing(t *testing.T) {
	database, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE playlist_shares").
		WithArgs("s1", ShareStatusAccepted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := database.Shares().UpdateStatus(context.Background(), "s1", ShareStatusAccepted)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_StorageUsed(t *testing.T) {
	database, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(file_size\\), 0\\)").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(4096)))

	used, err := database.Profiles().StorageUsed(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteRepository_CodeExists(t *testing.T) {
	database, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ABCD1234").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := database.Invites().CodeExists(context.Background(), "ABCD1234")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackRepository_ListForUser(t *testing.T) {
	database, mock := setupMockDB(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM tracks WHERE user_id = \\$1 ORDER BY created_at DESC").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(trackCols).
			AddRow("t2", "u1", "b", "b.wav", "u1/t2/b.wav", int64(20), "songs", now).
			AddRow("t1", "u1", "a", "a.mp3", "u1/t1/a.mp3", int64(10), "demos", now.Add(-time.Hour)))

	tracks, err := database.Tracks().ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "t2", tracks[0].ID)
	assert.Equal(t, "u1/t1/a.mp3", tracks[1].StoragePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_Upsert(t *testing.T) {
	database, mock := setupMockDB(t)
	ctx := context.Background()
	created := time.Now().Add(-24 * time.Hour)
	updated := time.Now()

	mock.ExpectQuery("INSERT INTO profiles .* ON CONFLICT \\(user_id\\) DO UPDATE").
		WithArgs("u1", "a@example.com", int64(5<<30)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))

	p := &Profile{UserID: "u1", Email: "a@example.com", StorageQuota: 5 << 30}
	require.NoError(t, database.Profiles().Upsert(ctx, p))
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, updated, p.UpdatedAt)

	mock.ExpectQuery("INSERT INTO profiles").
		WithArgs("u2", "", int64(1)).
		WillReturnError(errors.New("conn reset"))
	err := database.Profiles().Upsert(ctx, &Profile{UserID: "u2", StorageQuota: 1})
	assert.ErrorContains(t, err, "upserting profile")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteRepository_Get(t *testing.T) {
	database, mock := setupMockDB(t)
	ctx := context.Background()
	inviteCols := []string{"code", "email", "created_by", "expires_at", "created_at", "redeemed_at"}
	email := "band@example.com"
	expires := time.Now().Add(7 * 24 * time.Hour)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM invites WHERE code = \\$1").
			WithArgs("ABCD2345").
			WillReturnRows(pgxmock.NewRows(inviteCols).
				AddRow("ABCD2345", &email, "admin", expires, time.Now(), (*time.Time)(nil)))

		inv, err := database.Invites().Get(ctx, "ABCD2345")
		require.NoError(t, err)
		require.NotNil(t, inv.Email)
		assert.Equal(t, email, *inv.Email)
		assert.Nil(t, inv.RedeemedAt)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM invites WHERE code = \\$1").
			WithArgs("NOPE").
			WillReturnError(pgx.ErrNoRows)

		_, err := database.Invites().Get(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.co", NormalizeEmail(" A@B.Co "))
}
