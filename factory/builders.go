/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package factory

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/ista-data/ista/adapter"
)

var genres = []string{"Action", "Adventure", "Comedy", "Crime", "Drama",
	"Fantasy", "Horror", "Thriller", "Romance", "Sci-Fi", "Animation", "Documentary"}

var contentRatings = []string{"G", "PG", "PG-13", "R", "NC-17", "Not Rated"}

func init() {
	register(Factory{Name: "movies", Collection: "movies", Build: buildMovie})
	register(Factory{Name: "users", Collection: "users", Build: buildUser})
	register(Factory{Name: "comments", Collection: "comments", Build: buildComment})
	register(Factory{Name: "sessions", Collection: "sessions", Build: buildSession})
}

func pick(f *gofakeit.Faker, options []string, min, max int) []interface{} {
	n := f.Number(min, max)
	out := make([]interface{}, 0, n)
	seen := map[string]struct{}{}
	for len(out) < n {
		choice := f.RandomString(options)
		if _, dup := seen[choice]; dup {
			continue
		}
		seen[choice] = struct{}{}
		out = append(out, choice)
	}
	return out
}

func names(f *gofakeit.Faker, min, max int) []interface{} {
	n := f.Number(min, max)
	out := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.Name())
	}
	return out
}

func buildMovie(f *gofakeit.Faker) adapter.Document {
	released := f.DateRange(
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC))
	return adapter.Document{
		"title":    f.MovieName(),
		"year":     released.Year(),
		"rated":    f.RandomString(contentRatings),
		"runtime":  f.Number(80, 240),
		"genres":   pick(f, genres, 1, 3),
		"director": f.Name(),
		"cast":     names(f, 1, 8),
		"plot":     f.Sentence(12),
		"type":     "movie",
		"released": released,
		"imdb": map[string]interface{}{
			"rating": f.Float64Range(1, 10),
			"votes":  f.Number(1000, 2000000),
		},
		"awards": map[string]interface{}{
			"wins":        f.Number(0, 20),
			"nominations": f.Number(0, 50),
		},
		"poster":     f.URL(),
		"metacritic": f.Number(0, 100),
	}
}

func buildUser(f *gofakeit.Faker) adapter.Document {
	created := f.DateRange(time.Now().AddDate(-1, 0, 0), time.Now())
	return adapter.Document{
		"username":      f.Username(),
		"email":         f.Email(),
		"password_hash": uuid.NewString(),
		"profile": map[string]interface{}{
			"name":       f.Name(),
			"bio":        f.Sentence(8),
			"avatar_url": f.URL(),
		},
		"preferences": map[string]interface{}{
			"genres":                pick(f, genres, 1, 3),
			"language":              f.RandomString([]string{"en", "es", "fr", "de"}),
			"notifications_enabled": f.Bool(),
			"theme":                 f.RandomString([]string{"light", "dark"}),
		},
		"subscription": map[string]interface{}{
			"plan":   f.RandomString([]string{"free", "basic", "premium"}),
			"active": f.Bool(),
		},
		"created_at": created,
		"updated_at": time.Now(),
	}
}

func buildComment(f *gofakeit.Faker) adapter.Document {
	return adapter.Document{
		"movie_id":  uuid.NewString(),
		"user_id":   uuid.NewString(),
		"email":     f.Email(),
		"text":      f.Sentence(20),
		"date":      f.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()),
		"likes":     f.Number(0, 1000),
		"is_hidden": f.Bool(),
		"rating":    f.Number(1, 10),
	}
}

func buildSession(f *gofakeit.Faker) adapter.Document {
	created := f.DateRange(time.Now().Add(-24*time.Hour), time.Now())
	return adapter.Document{
		"user_id":       uuid.NewString(),
		"token":         uuid.NewString(),
		"refresh_token": uuid.NewString(),
		"created_at":    created,
		"expires_at":    created.Add(24 * time.Hour),
		"ip_address":    f.IPv4Address(),
		"user_agent":    f.UserAgent(),
		"device_info": map[string]interface{}{
			"type":    f.RandomString([]string{"web", "mobile", "tablet"}),
			"os":      f.RandomString([]string{"Windows", "macOS", "Linux", "iOS", "Android"}),
			"browser": f.RandomString([]string{"Chrome", "Firefox", "Safari", "Edge"}),
		},
		"is_active": f.Bool(),
	}
}
