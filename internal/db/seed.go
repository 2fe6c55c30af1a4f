package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seedCities = []string{"Tashkent", "Samarkand", "Bukhara"}

// SeedTestData resets the database and populates it with demo profiles, likes and matches.
//
// Behavior:
//  1. Clears every table the seed writes to.
//  2. Creates 20 profiles (1..10 male, 11..20 female) with small balances.
//  3. Generates one-way likes between opposite genders; every 3rd pair is made
//     mutual and gets a match waiting for its tasks to start.
//  4. Adds a WELCOME coupon.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := resetTables(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}
		u := User{
			ID:      uint64(i),
			Name:    fmt.Sprintf("user%d", i),
			Gender:  gender,
			Age:     18 + r.Intn(20),
			City:    seedCities[r.Intn(len(seedCities))],
			Balance: decimal.NewFromInt(int64(r.Intn(5))),
		}
		if err := db.Create(&u).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
	}
	log.Println("Seeded 20 users.")

	counter, matches := 0, 0
	for liker := uint64(1); liker <= 10; liker++ {
		for j := 0; j < 4; j++ {
			target := uint64(11 + r.Intn(10))
			if err := insertLike(db, liker, target); err != nil {
				return err
			}
			if counter%3 == 0 {
				created, err := insertMutual(db, liker, target)
				if err != nil {
					return err
				}
				if created {
					matches++
				}
			}
			counter++
		}
	}
	log.Printf("Seeded %d likes, %d matches.", counter, matches)

	coupon := BalanceCoupon{Code: "WELCOME", Amount: decimal.NewFromInt(2), MaxUses: 100, Active: true}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&coupon).Error
}

// SeedMinimalTestData writes a tiny fixed graph:
// 1 and 2 like each other (match waiting to start), 3 likes 1.
func SeedMinimalTestData(db *gorm.DB) error {
	if err := resetTables(db); err != nil {
		return err
	}

	users := []User{
		{ID: 1, Name: "user1", Gender: "male", Age: 25, City: "Tashkent", Balance: decimal.NewFromInt(5)},
		{ID: 2, Name: "user2", Gender: "female", Age: 24, City: "Tashkent"},
		{ID: 3, Name: "user3", Gender: "female", Age: 30, City: "Samarkand"},
	}
	if err := db.Create(&users).Error; err != nil {
		return err
	}

	if err := insertLike(db, 1, 2); err != nil {
		return err
	}
	if _, err := insertMutual(db, 1, 2); err != nil {
		return err
	}
	return insertLike(db, 3, 1)
}

func resetTables(db *gorm.DB) error {
	for _, table := range []string{
		"messages", "chat_sessions", "task_answers", "matches", "likes",
		"coupon_redemptions", "balance_coupons", "profile_boosts",
		"ledger_entries", "payments", "balance_snapshots", "users",
	} {
		if !db.Migrator().HasTable(table) {
			continue
		}
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func insertLike(db *gorm.DB, liker, target uint64) error {
	like := Like{LikerID: liker, TargetID: target}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
		return fmt.Errorf("failed to seed like: %w", err)
	}
	return nil
}

// insertMutual adds the reverse edge and the match for the pair unless it exists.
func insertMutual(db *gorm.DB, a, b uint64) (bool, error) {
	if err := insertLike(db, b, a); err != nil {
		return false, err
	}
	if a > b {
		a, b = b, a
	}
	var count int64
	if err := db.Model(&Match{}).Where("user1_id = ? AND user2_id = ?", a, b).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	m := Match{User1ID: a, User2ID: b, Stage: "awaiting_start", Active: true, User1Expected: -1, User2Expected: -1}
	if err := db.Create(&m).Error; err != nil {
		return false, fmt.Errorf("failed to seed match: %w", err)
	}
	return true, nil
}
