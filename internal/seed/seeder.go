// Package seed populates the backing stores with realistic demo data for
// local development.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"parley/internal/models"
	"parley/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Seeder generates demo profiles, conversations, and messages.
type Seeder struct {
	db            *gorm.DB
	mongo         *mongo.Database
	profiles      repository.ProfileRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
}

// NewSeeder creates a Seeder over the given stores.
func NewSeeder(db *gorm.DB, mongoDB *mongo.Database) *Seeder {
	return &Seeder{
		db:            db,
		mongo:         mongoDB,
		profiles:      repository.NewProfileRepository(db),
		conversations: repository.NewConversationRepository(mongoDB),
		messages:      repository.NewMessageRepository(mongoDB),
	}
}

// ClearAll wipes seeded data from both stores.
func (s *Seeder) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM profiles").Error; err != nil {
		return fmt.Errorf("clear profiles: %w", err)
	}
	for _, coll := range []string{"messages", "conversations", "outbox"} {
		if _, err := s.mongo.Collection(coll).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("clear %s: %w", coll, err)
		}
	}
	log.Println("cleared existing data")
	return nil
}

// SeedProfiles creates n demo profiles and returns them.
func (s *Seeder) SeedProfiles(ctx context.Context, n int) ([]*models.Profile, error) {
	profiles := make([]*models.Profile, 0, n)
	for i := 0; i < n; i++ {
		username := strings.ToLower(gofakeit.Username())
		profile := &models.Profile{
			ID:          uuid.NewString(),
			AuthID:      uuid.NewString(),
			Username:    fmt.Sprintf("%s%d", username, i),
			DisplayName: gofakeit.Name(),
			Bio:         gofakeit.Sentence(8),
			AvatarURL:   gofakeit.ImageURL(128, 128),
			Status:      models.StatusOffline,
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, fmt.Errorf("create profile %s: %w", profile.Username, err)
		}
		profiles = append(profiles, profile)
	}
	log.Printf("seeded %d profiles", len(profiles))
	return profiles, nil
}

// SeedConversations creates private and group conversations among the given
// profiles, each populated with a handful of messages.
func (s *Seeder) SeedConversations(ctx context.Context, profiles []*models.Profile, n int) error {
	if len(profiles) < 3 {
		return fmt.Errorf("need at least 3 profiles to seed conversations")
	}

	created := 0
	for i := 0; i < n; i++ {
		creator := profiles[rand.Intn(len(profiles))]
		var conv *models.Conversation
		var err error

		if i%2 == 0 {
			other := profiles[rand.Intn(len(profiles))]
			if other.ID == creator.ID {
				continue
			}
			conv, err = models.NewConversation(models.NewConversationInput{
				Type:         models.ConversationPrivate,
				CreatorID:    models.UserID(creator.ID),
				Participants: []models.UserID{models.UserID(other.ID)},
			})
		} else {
			members := make([]models.UserID, 0, 4)
			for _, p := range pickProfiles(profiles, 3) {
				members = append(members, models.UserID(p.ID))
			}
			conv, err = models.NewConversation(models.NewConversationInput{
				Type:         models.ConversationGroup,
				CreatorID:    models.UserID(creator.ID),
				Participants: members,
				Name:         gofakeit.HipsterWord() + " " + gofakeit.NounAbstract(),
				Description:  gofakeit.Sentence(6),
			})
		}
		if err != nil {
			continue
		}

		if err := s.conversations.Save(ctx, conv); err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
		if err := s.seedMessages(ctx, conv, 3+rand.Intn(8)); err != nil {
			return err
		}
		created++
	}

	log.Printf("seeded %d conversations", created)
	return nil
}

func (s *Seeder) seedMessages(ctx context.Context, conv *models.Conversation, n int) error {
	for i := 0; i < n; i++ {
		sender := conv.Participants[rand.Intn(len(conv.Participants))]
		msg, err := models.NewMessage(models.NewMessageInput{
			ConversationID: conv.ID,
			SenderID:       sender,
			Content:        gofakeit.HipsterSentence(4 + rand.Intn(10)),
		})
		if err != nil {
			return err
		}
		if err := s.messages.Save(ctx, msg); err != nil {
			return fmt.Errorf("save message: %w", err)
		}
		if err := s.conversations.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
			return fmt.Errorf("update last message: %w", err)
		}
	}
	return nil
}

func pickProfiles(profiles []*models.Profile, n int) []*models.Profile {
	idx := rand.Perm(len(profiles))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]*models.Profile, 0, n)
	for _, i := range idx[:n] {
		out = append(out, profiles[i])
	}
	return out
}
