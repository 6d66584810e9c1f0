package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brunnerh/email-sink/internal/domain"
)

func TestLocalCache_Sink(t *testing.T) {
	c := NewLocalCache()
	defer c.Close()

	sink := &domain.Sink{ID: "sink-1", Slug: "ci-reports", Name: "CI Reports"}

	t.Run("未命中返回 ErrMiss", func(t *testing.T) {
		_, err := c.GetCachedSinkBySlug("ci-reports")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("写入后命中", func(t *testing.T) {
		assert.NoError(t, c.CacheSinkBySlug(sink, time.Minute))
		got, err := c.GetCachedSinkBySlug("ci-reports")
		assert.NoError(t, err)
		assert.Equal(t, "sink-1", got.ID)
	})

	t.Run("返回副本不共享底层对象", func(t *testing.T) {
		got, err := c.GetCachedSinkBySlug("ci-reports")
		assert.NoError(t, err)
		got.Name = "mutated"

		again, err := c.GetCachedSinkBySlug("ci-reports")
		assert.NoError(t, err)
		assert.Equal(t, "CI Reports", again.Name)
	})

	t.Run("删除后未命中", func(t *testing.T) {
		assert.NoError(t, c.DeleteCachedSink("ci-reports"))
		_, err := c.GetCachedSinkBySlug("ci-reports")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("过期后未命中", func(t *testing.T) {
		assert.NoError(t, c.CacheSinkBySlug(sink, time.Nanosecond))
		time.Sleep(5 * time.Millisecond)
		_, err := c.GetCachedSinkBySlug("ci-reports")
		assert.ErrorIs(t, err, ErrMiss)
	})
}

func TestLocalCache_EmailList(t *testing.T) {
	c := NewLocalCache()
	defer c.Close()

	emails := []domain.Email{
		{ID: "email-1", SinkID: "sink-1", Subject: "first"},
		{ID: "email-2", SinkID: "sink-1", Subject: "second"},
	}

	assert.NoError(t, c.CacheEmailList("sink-1", emails, time.Minute))

	got, err := c.GetCachedEmailList("sink-1")
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Subject)

	assert.NoError(t, c.DeleteCachedEmailList("sink-1"))
	_, err = c.GetCachedEmailList("sink-1")
	assert.ErrorIs(t, err, ErrMiss)
}
