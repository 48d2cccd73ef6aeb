// Command seed populates the profiles table with demo users so the matching
// engine can be exercised locally. Profiles are otherwise owned by the
// surrounding account system; this tool stands in for it during development.
package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmallia/go-match-backend/internal/config"
	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/repo"
)

// demo profiles: a mix of orientations plus one half-completed profile to
// exercise the profile-incomplete path.
var seedProfiles = []domain.Profile{
	{Gender: domain.GenderMale, SeekingGender: domain.GenderFemale, Nickname: "alex", Bio: "climber, espresso snob"},
	{Gender: domain.GenderFemale, SeekingGender: domain.GenderMale, Nickname: "sam", Bio: "live music and bad puns"},
	{Gender: domain.GenderMale, SeekingGender: domain.SeekingAll, Nickname: "jo", Bio: "ask me about vinyl"},
	{Gender: domain.GenderFemale, SeekingGender: domain.SeekingAll, Nickname: "kim", Bio: "trivia night regular"},
	{Gender: domain.GenderFemale, SeekingGender: domain.GenderFemale, Nickname: "ren", Bio: "amateur barista"},
	{Gender: domain.GenderMale, SeekingGender: domain.GenderMale, Nickname: "theo", Bio: "runs at dawn"},
	{Gender: domain.GenderMale, SeekingGender: "", Nickname: "pat", Bio: "still setting up"},
}

func seed(db *gorm.DB) error {
	for i := range seedProfiles {
		p := seedProfiles[i]
		p.ID = uuid.NewString()
		p.AvatarURL = fmt.Sprintf("https://i.pravatar.cc/150?u=%s", p.Nickname)

		// Nickname keyed upsert keeps the tool re-runnable.
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "nickname"}},
			DoUpdates: clause.AssignmentColumns([]string{"gender", "seeking_gender", "bio", "avatar_url"}),
		}).Create(&p).Error
		if err != nil {
			return fmt.Errorf("seed profile %q: %w", p.Nickname, err)
		}
		log.Info().Str("id", p.ID).Str("nickname", p.Nickname).Msg("seeded profile")
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}
	if err := seed(db); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	log.Info().Int("profiles", len(seedProfiles)).Msg("seeding completed")
}
