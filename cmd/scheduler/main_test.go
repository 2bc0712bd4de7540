package main

import (
	"testing"

	"atlas-feed/internal/infra/config"
)

func TestTasksFor(t *testing.T) {
	cases := []struct {
		name         string
		store, cache string
		learn, warm  bool
	}{
		{name: "всё в памяти", store: "memory", cache: "memory"},
		{name: "пустые значения", store: "", cache: ""},
		{name: "redis", store: "redis", cache: "redis", learn: true, warm: true},
		{name: "postgres и локальный кэш", store: "postgres", cache: "memory", learn: true},
		{name: "только общий кэш", store: "memory", cache: "redis", warm: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg config.AppConfig
			cfg.Store.Backend = tc.store
			cfg.Cache.Backend = tc.cache
			learn, warm := tasksFor(cfg)
			if learn != tc.learn || warm != tc.warm {
				t.Fatalf("ожидали learn=%v warm=%v, получили learn=%v warm=%v", tc.learn, tc.warm, learn, warm)
			}
		})
	}
}
