package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"atlas-feed/internal/domain"
)

func newPostgresStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock, "default", zerolog.Nop()), mock
}

func TestPostgresLoadDefaultsWhenMissing(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery("SELECT data FROM feed_preferences").
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	prefs := s.Load(context.Background())
	require.Equal(t, domain.DefaultTopics, prefs.Topics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadDefaultsOnError(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery("SELECT data FROM feed_preferences").
		WithArgs("default").
		WillReturnError(errors.New("connection reset"))

	prefs := s.Load(context.Background())
	require.Equal(t, domain.DefaultTopics, prefs.Topics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadStored(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery("SELECT data FROM feed_preferences").
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"topics":["music","art"],"page_size":15}`)))

	prefs := s.Load(context.Background())
	require.Equal(t, []domain.Topic{domain.TopicMusic, domain.TopicArt}, prefs.Topics)
	require.Equal(t, 15, prefs.PageSize)
	require.Equal(t, domain.SortDate, prefs.DefaultSort)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveLocksAndUpserts(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT data FROM feed_preferences .* FOR UPDATE").
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))
	mock.ExpectExec("INSERT INTO feed_preferences .* ON CONFLICT \\(profile\\) DO UPDATE").
		WithArgs("default", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	adult := true
	prefs, err := s.Save(context.Background(), domain.PreferencesPatch{ShowAdultContent: &adult})
	require.NoError(t, err)
	require.True(t, prefs.ShowAdultContent)
	require.Equal(t, domain.DefaultTopics, prefs.Topics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRejectsInvalidPatch(t *testing.T) {
	s, mock := newPostgresStore(t)
	sort := domain.SortStrategy("random")
	_, err := s.Save(context.Background(), domain.PreferencesPatch{DefaultSort: &sort})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendHistoryInTransaction(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feed_history WHERE content_id = \\$1 AND profile = \\$2").
		WithArgs("news:a", "default").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO feed_history").
		WithArgs("default", "news:a", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM feed_history WHERE profile = \\$1 AND id NOT IN \\(SELECT id FROM feed_history WHERE profile = \\$2 ORDER BY id DESC LIMIT 1000\\)").
		WithArgs("default", "default").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.AppendHistory(context.Background(), entry("news:a", domain.EngagementClick)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendHistoryRollsBackOnError(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feed_history WHERE").
		WithArgs("news:a", "default").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := s.AppendHistory(context.Background(), entry("news:a", domain.EngagementClick))
	require.ErrorContains(t, err, "deadlock detected")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadHistory(t *testing.T) {
	s, mock := newPostgresStore(t)
	first, err := json.Marshal(entry("news:b", domain.EngagementView))
	require.NoError(t, err)
	second, err := json.Marshal(entry("news:a", domain.EngagementFavorite))
	require.NoError(t, err)
	mock.ExpectQuery("SELECT entry FROM feed_history WHERE profile = \\$1 ORDER BY id DESC LIMIT 10").
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"entry"}).AddRow(first).AddRow(second))

	history := s.LoadHistory(context.Background(), 10)
	require.Len(t, history, 2)
	require.Equal(t, "news:b", history[0].ContentID)
	require.Equal(t, domain.EngagementFavorite, history[1].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFavorites(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery("SELECT ids FROM feed_favorites").
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"ids"}))
	mock.ExpectExec("INSERT INTO feed_favorites").
		WithArgs("default", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT ids FROM feed_favorites").
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"ids"}).AddRow([]byte(`["social:x"]`)))

	ctx := context.Background()
	require.Empty(t, s.LoadFavorites(ctx))
	require.NoError(t, s.SaveFavorites(ctx, []string{"social:x"}))
	require.Equal(t, []string{"social:x"}, s.LoadFavorites(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClearHistoryAndSchema(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feed_preferences").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("DELETE FROM feed_history WHERE profile = \\$1").
		WithArgs("default").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.ClearHistory(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
