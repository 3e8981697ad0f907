package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ownerdash/internal/config"
	"ownerdash/internal/feed"
	"ownerdash/internal/notify"
	"ownerdash/internal/views"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Backend: config.Backend{URL: "http://localhost:1", Timeout: time.Second},
		Feed:    config.Feed{Driver: "none"},
		Cache:   config.Cache{Driver: "memory"},
		Notify:  config.Notify{Sinks: []string{"log"}, File: filepath.Join(t.TempDir(), "n.jsonl")},
	}
}

func TestBuildFeed(t *testing.T) {
	assert.Nil(t, buildFeed(config.Feed{Driver: "none"}))
	assert.IsType(t, &feed.MemoryFeed{}, buildFeed(config.Feed{Driver: "replay"}))
	assert.IsType(t, &feed.KafkaFeed{}, buildFeed(config.Feed{Driver: "kafka", Brokers: "k:9092", Topic: "t", Group: "g"}))
	assert.IsType(t, &feed.ConfluentFeed{}, buildFeed(config.Feed{Driver: "confluent", Brokers: "k:9092", Topic: "t", Group: "g"}))
}

func TestBuildNotifier(t *testing.T) {
	cfg := testConfig(t)
	n, closers, err := buildNotifier(cfg)
	require.NoError(t, err)
	assert.IsType(t, &notify.LogNotifier{}, n)
	assert.Empty(t, closers)

	cfg.Notify.Sinks = []string{"log", "file"}
	n, _, err = buildNotifier(cfg)
	require.NoError(t, err)
	assert.IsType(t, &notify.MultiNotifier{}, n)

	cfg.Notify.Sinks = nil
	n, _, err = buildNotifier(cfg)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestNewApp_PebbleCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache = config.Cache{Driver: "pebble", Dir: filepath.Join(t.TempDir(), "cache")}

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	vs, err := a.orderViews()
	require.NoError(t, err)
	require.Len(t, vs, len(views.OrderViews()))
	assert.Equal(t, views.NameActive, vs[0].Name())
	assert.Equal(t, views.NameMenu, a.menuView().Name())
}

func TestFindOrderView(t *testing.T) {
	def, ok := findOrderView(views.NameTransactions)
	require.True(t, ok)
	assert.Equal(t, views.EndpointTransactions, def.Endpoint)

	_, ok = findOrderView(views.NameMenu)
	assert.False(t, ok)
}
