//go:build integration

package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"mestrai-server/shared/database"
	"mestrai-server/shared/models"
)

// StorageIntegrationSuite поднимает PostgreSQL и Redis в контейнерах.
type StorageIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger
}

func (s *StorageIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start postgres container")

	dsn, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	version, err := database.RunMigrations(dsn, s.logger)
	s.Require().NoError(err, "Failed to run migrations")
	s.Require().EqualValues(1, version)

	s.pgPool, err = pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start redis container")

	host, err := s.rdContainer.Host(s.ctx)
	s.Require().NoError(err)
	port, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	s.Require().NoError(err)
	s.redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	s.Require().NoError(s.redisClient.Ping(s.ctx).Err())
}

func (s *StorageIntegrationSuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *StorageIntegrationSuite) SetupTest() {
	_, err := s.pgPool.Exec(s.ctx, `TRUNCATE session_events, characters, campaign_participants, campaigns`)
	s.Require().NoError(err)
	s.Require().NoError(s.redisClient.FlushDB(s.ctx).Err())
}

func (s *StorageIntegrationSuite) seedCampaign(id string) {
	campaigns := database.NewPgCampaignRepository(s.pgPool, s.logger)
	s.Require().NoError(campaigns.SaveCampaign(s.ctx, &models.Campaign{
		ID: id, OwnerID: "owner", Title: "Mesa", Status: models.CampaignActive, CreatedAt: time.Now(),
	}))
	s.Require().NoError(campaigns.SaveParticipant(s.ctx, models.Participant{
		CampaignID: id, ID: "p1", Name: "Iris", Status: models.ParticipantAccepted,
	}))
}

func (s *StorageIntegrationSuite) TestSessionEventLog_AppendAndList() {
	s.seedCampaign("c1")
	log := database.NewPgSessionEventRepository(s.pgPool, s.logger)

	actor := "p1"
	first, err := log.Append(s.ctx, models.SessionEvent{
		CampaignID: "c1", Kind: models.EventKindNarrative, Role: models.RoleUser,
		Content: "Iris: abro a porta", ActorID: &actor,
		Payload: []byte(`{"turn_id":"r1","player_id":"p1"}`), Action: models.TurnActionSubmit,
	})
	s.Require().NoError(err)

	_, err = log.AppendGuarded(s.ctx, models.SessionEvent{
		CampaignID: "c1", Kind: models.EventKindNarrative, Role: models.RoleModel, Content: "A porta range.",
	}, func(history []models.SessionEvent) error {
		s.Len(history, 1)
		return nil
	})
	s.Require().NoError(err)

	_, err = log.AppendGuarded(s.ctx, models.SessionEvent{
		CampaignID: "c1", Kind: models.EventKindNarrative, Content: "rejected",
	}, func([]models.SessionEvent) error { return models.ErrTurnViolation })
	s.ErrorIs(err, models.ErrTurnViolation)

	events, err := log.List(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(first, events[0].ID)
	s.Equal("p1", events[0].Actor())
	s.Equal(models.TurnActionSubmit, events[0].Action)
	var p models.TurnPayload
	s.Require().NoError(events[0].DecodePayload(&p))
	s.Equal("r1", p.TurnID)
	s.Equal("A porta range.", events[1].Content)
	s.False(events[1].SequenceTime.Before(events[0].SequenceTime))
}

func (s *StorageIntegrationSuite) TestSessionEventLog_ConcurrentGuardsSerialize() {
	s.seedCampaign("c1")
	log := database.NewPgSessionEventRepository(s.pgPool, s.logger)

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := log.AppendGuarded(s.ctx, models.SessionEvent{
				CampaignID: "c1", Kind: models.EventKindSystemNotice, Content: "start",
			}, func(history []models.SessionEvent) error {
				if len(history) > 0 {
					return models.ErrRoundActive
				}
				return nil
			})
			errs <- err
		}()
	}
	accepted := 0
	for i := 0; i < writers; i++ {
		if err := <-errs; err == nil {
			accepted++
		} else {
			s.ErrorIs(err, models.ErrRoundActive)
		}
	}
	s.Equal(1, accepted)
}

func (s *StorageIntegrationSuite) TestCharacterRepository_RoundTrip() {
	s.seedCampaign("c1")
	repo := database.NewPgCharacterRepository(s.pgPool, s.logger)

	_, err := repo.Get(s.ctx, "c1", "p1")
	s.ErrorIs(err, models.ErrNotFound)

	char := &models.Character{
		CampaignID: "c1", ParticipantID: "p1", Name: "Iris", Profession: "Ferreira",
		State: models.CharacterState{
			Attributes: models.Attributes{models.AttrVigor: 4, models.AttrDestreza: 3, models.AttrMente: 2, models.AttrPresenca: 1},
			Health:     models.Health{Tier: models.TierInjured, LightDamageCounter: 1},
			Inventory:  []models.InventoryItem{{ID: "i1", Name: "Martelo", Type: models.ItemEquipment, Quantity: 1}},
		},
	}
	s.Require().NoError(repo.Save(s.ctx, char))

	char.State.Health.Tier = models.TierCritical
	s.Require().NoError(repo.Save(s.ctx, char))

	got, err := repo.Get(s.ctx, "c1", "p1")
	s.Require().NoError(err)
	s.Equal(models.TierCritical, got.State.Health.Tier)
	s.Equal(4, got.State.Attributes[models.AttrVigor])
	s.Len(got.State.Inventory, 1)

	list, err := repo.ListByCampaign(s.ctx, "c1")
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *StorageIntegrationSuite) TestCampaignRepository() {
	s.seedCampaign("c1")
	repo := database.NewPgCampaignRepository(s.pgPool, s.logger)

	c, err := repo.GetByID(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal(models.CampaignActive, c.Status)

	_, err = repo.GetByID(s.ctx, "missing")
	s.ErrorIs(err, models.ErrNotFound)

	ps, err := repo.ListParticipants(s.ctx, "c1", models.ParticipantAccepted)
	s.Require().NoError(err)
	s.Require().Len(ps, 1)
	s.Equal("Iris", ps[0].Name)
}

func (s *StorageIntegrationSuite) TestRedisRateStore_SlidingWindow() {
	store := database.NewRedisRateStore(s.redisClient, s.logger)

	for i := 0; i < 3; i++ {
		ok, err := store.Allow(s.ctx, "chat:p1:c1", 3, time.Minute)
		s.Require().NoError(err)
		s.True(ok)
	}
	ok, err := store.Allow(s.ctx, "chat:p1:c1", 3, time.Minute)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = store.Allow(s.ctx, "chat:p2:c1", 3, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func TestStorageIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping storage integration tests in short mode.")
	}
	suite.Run(t, new(StorageIntegrationSuite))
}
