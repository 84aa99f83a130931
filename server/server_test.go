package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dao-service/core"
)

func newTestRouter(t *testing.T) (*gorm.DB, http.Handler) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store := core.NewStore(db)
	require.NoError(t, store.Migrate())

	// an unreachable cache: block headers are simply omitted
	cache := core.NewCache("127.0.0.1:1")
	return db, New(store, cache, func() bool { return true })
}

func TestPing(t *testing.T) {
	_, router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestListAndGetDaos(t *testing.T) {
	db, router := newTestRouter(t)
	require.NoError(t, db.Create(&core.Dao{ID: "dao1", Name: "dao1 name", CreatorID: "acc1", OwnerID: "acc1"}).Error)
	require.NoError(t, db.Create(&core.Dao{ID: "dao2", Name: "dao2 name", CreatorID: "acc2", OwnerID: "acc2"}).Error)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daos?limit=1&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var daos []core.Dao
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &daos))
	require.Len(t, daos, 1)
	assert.Equal(t, "dao2", daos[0].ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daos/dao1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var dao core.Dao
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dao))
	assert.Equal(t, "dao1 name", dao.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daos/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProposalWithVotes(t *testing.T) {
	db, router := newTestRouter(t)
	require.NoError(t, db.Create(&core.Proposal{ID: "prop1", DaoID: "dao1", CreatorID: "acc1", BirthBlockNumber: 3, Status: core.ProposalStatusRunning}).Error)
	require.NoError(t, db.Create(&core.Vote{ProposalID: "prop1", VoterID: "acc1", VotingPower: 100}).Error)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proposals/prop1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Proposal core.Proposal `json:"proposal"`
		Votes    []core.Vote   `json:"votes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "dao1", payload.Proposal.DaoID)
	require.Len(t, payload.Votes, 1)
	assert.EqualValues(t, 100, payload.Votes[0].VotingPower)
}

func TestGetAssetWithHoldings(t *testing.T) {
	db, router := newTestRouter(t)
	require.NoError(t, db.Create(&core.Asset{ID: 1, DaoID: "dao1", OwnerID: "acc1", TotalSupply: 100}).Error)
	require.NoError(t, db.Create(&core.AssetHolding{AssetID: 1, OwnerID: "acc1", Balance: 100}).Error)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Asset    core.Asset          `json:"asset"`
		Holdings []core.AssetHolding `json:"holdings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.EqualValues(t, 100, payload.Asset.TotalSupply)
	require.Len(t, payload.Holdings, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/notanumber", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	_, router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Status  string          `json:"status"`
		Details map[string]bool `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "passed", payload.Status)
	assert.True(t, payload.Details["database"])
	assert.True(t, payload.Details["blockchain"])
}
